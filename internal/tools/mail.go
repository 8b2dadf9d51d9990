package tools

import (
	"context"
	"fmt"
	"net/mail"
	gosmtp "net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendMailFunc func(addr string, auth gosmtp.Auth, from string, to []string, msg []byte) error

// MailTool sends email over SMTP.
type MailTool struct {
	cfg      MailConfig
	sendMail sendMailFunc
	policy   *bluemonday.Policy
}

func NewMailTool(cfg MailConfig) *MailTool {
	if cfg.Port < 1 {
		cfg.Port = 587
	}
	return &MailTool{
		cfg:      cfg,
		sendMail: gosmtp.SendMail,
		policy:   bluemonday.UGCPolicy(),
	}
}

func (m *MailTool) Name() string {
	return "mail"
}

func (m *MailTool) Actions() map[string]string {
	return map[string]string{
		"send_email": "Send an email. Params: to (address or resolved contact), subject, body, html (optional), cc (optional).",
	}
}

func (m *MailTool) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	host := strings.TrimSpace(m.cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("smtp host is not configured")
	}

	to, err := parseRecipients(addressOf(firstPresent(params, "to", "recipient", "contact")))
	if err != nil {
		return nil, err
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("send_email requires a recipient in to")
	}
	cc, err := parseRecipients(addressOf(params["cc"]))
	if err != nil {
		return nil, err
	}

	fromAddr, fromHeader, err := parseSingleAddress(m.cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}

	subject := stringParam(params, "subject")
	if subject == "" {
		subject = "Message from conduit"
	}
	textBody, err := bodyParam(params, "body", "text", "content")
	if err != nil {
		return nil, err
	}
	htmlBody, err := bodyParam(params, "html")
	if err != nil {
		return nil, err
	}
	if textBody == "" && htmlBody == "" {
		return nil, fmt.Errorf("send_email requires body or html content")
	}

	headers := []string{
		"From: " + sanitizeHeader(fromHeader),
		"To: " + sanitizeHeader(strings.Join(to, ", ")),
		"Subject: " + sanitizeHeader(subject),
		"Date: " + time.Now().UTC().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
	}
	if len(cc) > 0 {
		headers = append(headers, "Cc: "+sanitizeHeader(strings.Join(cc, ", ")))
	}
	body := textBody
	if htmlBody != "" {
		headers = append(headers, "Content-Type: text/html; charset=UTF-8")
		body = m.policy.Sanitize(htmlBody)
	} else {
		headers = append(headers, "Content-Type: text/plain; charset=UTF-8")
	}
	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + normalizeBody(body)

	var auth gosmtp.Auth
	if strings.TrimSpace(m.cfg.Username) != "" {
		if strings.TrimSpace(m.cfg.Password) == "" {
			return nil, fmt.Errorf("smtp password is required when username is set")
		}
		auth = gosmtp.PlainAuth("", m.cfg.Username, m.cfg.Password, host)
	}
	all := dedupeRecipients(append(append([]string{}, to...), cc...))
	addr := host + ":" + strconv.Itoa(m.cfg.Port)
	if err := m.sendMail(addr, auth, fromAddr, all, []byte(message)); err != nil {
		return nil, fmt.Errorf("smtp send: %w", err)
	}

	return map[string]any{
		"status":     "sent",
		"recipients": all,
		"subject":    subject,
	}, nil
}

// bodyParam reads message content that is either text or a substituted
// document record. A record contributes its content, else its title and link.
func bodyParam(params map[string]any, keys ...string) (string, error) {
	for _, key := range keys {
		record, ok := params[key].(map[string]any)
		if !ok {
			if s := stringParam(params, key); s != "" {
				return s, nil
			}
			continue
		}
		if stringParam(record, "type") == "pending_meeting_summary" {
			return "", fmt.Errorf("send_email: the meeting summary has not been generated yet")
		}
		if content := stringParam(record, "content"); content != "" {
			return content, nil
		}
		var parts []string
		if title := stringParam(record, "title"); title != "" {
			parts = append(parts, title)
		}
		if link := stringParam(record, "link", "file_path"); link != "" {
			parts = append(parts, link)
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}
	return "", nil
}

func firstPresent(params map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := params[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func parseRecipients(values []string) ([]string, error) {
	recipients := make([]string, 0, len(values))
	for _, raw := range values {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		address, _, err := parseSingleAddress(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid recipient %q: %w", trimmed, err)
		}
		recipients = append(recipients, address)
	}
	return dedupeRecipients(recipients), nil
}

func parseSingleAddress(value string) (address string, display string, err error) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(value))
	if err != nil {
		return "", "", err
	}
	if parsed.Name != "" {
		return parsed.Address, parsed.String(), nil
	}
	return parsed.Address, parsed.Address, nil
}

func dedupeRecipients(values []string) []string {
	seen := map[string]struct{}{}
	results := make([]string, 0, len(values))
	for _, value := range values {
		key := strings.ToLower(strings.TrimSpace(value))
		if key == "" {
			continue
		}
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		results = append(results, value)
	}
	return results
}

func sanitizeHeader(value string) string {
	replacer := strings.NewReplacer("\r", " ", "\n", " ")
	return strings.TrimSpace(replacer.Replace(value))
}

func normalizeBody(value string) string {
	text := strings.ReplaceAll(value, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.ReplaceAll(text, "\n", "\r\n")
}
