package documents

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/conduit/internal/store"
)

type fakeRenderer struct {
	got string
	err error
}

func (f *fakeRenderer) Render(_ context.Context, html string) ([]byte, error) {
	f.got = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-fake"), nil
}

func (f *fakeRenderer) Ext() string { return ".pdf" }

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGenerateRendersAndStores(t *testing.T) {
	s := newStore(t)
	out := t.TempDir()
	renderer := &fakeRenderer{}
	g := NewGenerator(s, renderer, out, nil)

	doc, err := g.Generate(context.Background(), Request{
		Title:   "Weekly Sync",
		Content: "# Decisions\n- Ship <b>v2</b>\n- Hire\n\nNext steps follow.<script>alert(1)</script>",
		DocType: "meeting_summary",
		ChatID:  "tg:1",
	})
	require.NoError(t, err)

	assert.Equal(t, "Weekly Sync", doc.Title)
	assert.Equal(t, "meeting_summary", doc.DocType)
	assert.Equal(t, ".pdf", filepath.Ext(doc.FilePath))
	data, err := os.ReadFile(doc.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fake", string(data))

	assert.Contains(t, renderer.got, "<h2>Decisions</h2>")
	assert.Contains(t, renderer.got, "<li>Ship &lt;b&gt;v2&lt;/b&gt;</li>")
	assert.NotContains(t, renderer.got, "<script>")

	found, err := s.SearchDocumentsByTitle(context.Background(), "weekly", 1)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, doc.ID, found[0].ID)
}

func TestGenerateFallsBackToHTML(t *testing.T) {
	g := NewGenerator(newStore(t), &fakeRenderer{err: errors.New("chrome not found")}, t.TempDir(), nil)

	doc, err := g.Generate(context.Background(), Request{Content: "Notes", DocType: "conversation_summary"})
	require.NoError(t, err)
	assert.Equal(t, ".html", filepath.Ext(doc.FilePath))
	assert.True(t, strings.HasPrefix(doc.Title, "Conversation summary - "), doc.Title)
}

func TestGenerateRejectsEmptyContent(t *testing.T) {
	g := NewGenerator(newStore(t), HTMLRenderer{}, t.TempDir(), nil)
	_, err := g.Generate(context.Background(), Request{Title: "Empty", Content: "  "})
	require.Error(t, err)
}
