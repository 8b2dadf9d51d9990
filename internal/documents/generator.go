package documents

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/rahul/conduit/internal/store"
)

type Saver interface {
	SaveDocument(ctx context.Context, d store.Document) (*store.Document, error)
}

type Request struct {
	Title   string
	Content string
	DocType string
	ChatID  string
}

// Generator renders text into a document file and records it in the store.
type Generator struct {
	saver     Saver
	renderer  Renderer
	fallback  Renderer
	outputDir string
	policy    *bluemonday.Policy
	log       *zap.Logger
}

// NewGenerator writes files under outputDir using renderer. When renderer
// fails, the HTML source is kept instead so the document still exists.
func NewGenerator(saver Saver, renderer Renderer, outputDir string, log *zap.Logger) *Generator {
	if renderer == nil {
		renderer = HTMLRenderer{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		saver:     saver,
		renderer:  renderer,
		fallback:  HTMLRenderer{},
		outputDir: outputDir,
		policy:    bluemonday.UGCPolicy(),
		log:       log,
	}
}

func (g *Generator) Generate(ctx context.Context, req Request) (*store.Document, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("document content is empty")
	}
	docType := strings.TrimSpace(req.DocType)
	if docType == "" {
		docType = "report"
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = fmt.Sprintf("%s - %s", capitalize(strings.ReplaceAll(docType, "_", " ")), time.Now().UTC().Format("2006-01-02"))
	}

	page := wrapPage(title, g.policy.Sanitize(toHTML(title, content)))

	renderer := g.renderer
	body, err := renderer.Render(ctx, page)
	if err != nil {
		g.log.Warn("document render failed, keeping html", zap.String("title", title), zap.Error(err))
		renderer = g.fallback
		body, err = renderer.Render(ctx, page)
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	id := uuid.NewString()
	path := filepath.Join(g.outputDir, id+renderer.Ext())
	if err := os.WriteFile(path, body, 0644); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}

	doc, err := g.saver.SaveDocument(ctx, store.Document{
		ID:       id,
		Title:    title,
		Content:  content,
		DocType:  docType,
		FilePath: path,
		ChatID:   req.ChatID,
	})
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return doc, nil
}

func wrapPage(title, body string) string {
	return "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>" + html.EscapeString(title) +
		"</title><style>body{font-family:sans-serif;margin:2em;line-height:1.4}</style></head><body>" +
		body + "</body></html>"
}

// toHTML lays out plain text: blank lines split paragraphs, "- " and "* "
// lines become bullet lists, "# " lines become headings.
func toHTML(title, content string) string {
	var b strings.Builder
	b.WriteString("<h1>" + html.EscapeString(title) + "</h1>")

	inList := false
	var para []string
	flush := func() {
		if len(para) > 0 {
			b.WriteString("<p>" + strings.Join(para, "<br>") + "</p>")
			para = nil
		}
	}
	closeList := func() {
		if inList {
			b.WriteString("</ul>")
			inList = false
		}
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
			closeList()
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			flush()
			if !inList {
				b.WriteString("<ul>")
				inList = true
			}
			b.WriteString("<li>" + html.EscapeString(strings.TrimSpace(line[2:])) + "</li>")
		case strings.HasPrefix(line, "#"):
			flush()
			closeList()
			b.WriteString("<h2>" + html.EscapeString(strings.TrimSpace(strings.TrimLeft(line, "#"))) + "</h2>")
		default:
			closeList()
			para = append(para, html.EscapeString(line))
		}
	}
	flush()
	closeList()
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
