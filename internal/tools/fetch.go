package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const maxPageChars = 50000

// FetchPageTool downloads a page and extracts its readable text.
type FetchPageTool struct {
	UserAgent string
	Client    *http.Client
	// MaxChars caps the returned content in bytes.
	MaxChars int
}

func NewFetchPageTool() *FetchPageTool {
	return &FetchPageTool{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Client:    &http.Client{Timeout: 30 * time.Second},
		MaxChars:  maxPageChars,
	}
}

func (f *FetchPageTool) Name() string {
	return "fetch"
}

func (f *FetchPageTool) Actions() map[string]string {
	return map[string]string{
		"fetch_page": "Fetch a web page and return its main text. Params: url.",
	}
}

func (f *FetchPageTool) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	raw := stringParam(params, "url", "link")
	if err := requireParam(action, "url", raw); err != nil {
		return nil, err
	}
	parsedURL, err := url.Parse(raw)
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return nil, fmt.Errorf("fetch_page: invalid url %q", raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse article: %w", err)
	}

	content, truncated := truncateUTF8(bluemonday.StrictPolicy().Sanitize(article.TextContent), f.MaxChars)
	return map[string]any{
		"url":       raw,
		"title":     article.Title,
		"excerpt":   article.Excerpt,
		"content":   content,
		"truncated": truncated,
	}, nil
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
