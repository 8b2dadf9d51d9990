package resolver

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/conduit/internal/store"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "resolver.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	for _, c := range []store.Contact{
		{Name: "Marc Dupont", Email: "marc@acme.io"},
		{Name: "Marcia Stone", Email: "marcia@acme.io"},
		{Name: "", Email: "billing@globex.com"},
	} {
		_, err := s.UpsertContact(ctx, c)
		require.NoError(t, err)
	}
	_, err = s.SaveDocument(ctx, store.Document{Title: "Q3 Budget", Content: "forecast for the offsite"})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, store.Task{Description: "Book the venue", Assignee: "ana@acme.io"})
	require.NoError(t, err)
	return s
}

func TestResolveAgainstStore(t *testing.T) {
	r := New(seededStore(t))

	resolved, unresolved, err := r.Resolve(context.Background(), map[Kind][]string{
		KindContact:  {"Marc", "MARC@acme.io", "billing", "Zoe"},
		KindDocument: {"budget", "offsite", "yesterday's meeting summary", "roadmap"},
		KindTask:     {"venue", "ana@"},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"contact:Zoe", "document:roadmap"}, unresolved)

	marc := resolved["contact:Marc"].Record.(store.Contact)
	assert.Equal(t, "marc@acme.io", marc.Email, "first name match wins")
	assert.Equal(t, "Marc Dupont", resolved["contact:MARC@acme.io"].Record.(store.Contact).Name)
	assert.Equal(t, "billing@globex.com", resolved["contact:billing"].Record.(store.Contact).Email)

	assert.Equal(t, "Q3 Budget", resolved["document:budget"].Record.(store.Document).Title)
	assert.Equal(t, "Q3 Budget", resolved["document:offsite"].Record.(store.Document).Title)
	assert.Equal(t, PendingMeetingSummary, resolved["document:yesterday's meeting summary"].Record)

	assert.Equal(t, "Book the venue", resolved["task:venue"].Record.(store.Task).Description)
	assert.Equal(t, "Book the venue", resolved["task:ana@"].Record.(store.Task).Description)
}

func TestResolveEmailMentionIsExact(t *testing.T) {
	r := New(seededStore(t))
	resolved, unresolved, err := r.Resolve(context.Background(), map[Kind][]string{
		KindContact: {"marc@acme"},
	})
	require.NoError(t, err)
	assert.Empty(t, resolved)
	assert.Equal(t, []string{"contact:marc@acme"}, unresolved)
}

func TestResolveSkipsBlankAndDuplicateMentions(t *testing.T) {
	r := New(seededStore(t))
	resolved, unresolved, err := r.Resolve(context.Background(), map[Kind][]string{
		KindContact: {"Marc", " ", "Marc", "Nobody", "Nobody"},
	})
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
	assert.Equal(t, []string{"contact:Nobody"}, unresolved)
}

type brokenBackend struct {
	Backend
}

func (brokenBackend) SearchContactsByName(context.Context, string, int) ([]store.Contact, error) {
	return nil, errors.New("database is locked")
}

func TestResolveReturnsStoreErrors(t *testing.T) {
	r := New(brokenBackend{Backend: seededStore(t)})
	_, _, err := r.Resolve(context.Background(), map[Kind][]string{KindContact: {"Marc"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contact:Marc")
	assert.Contains(t, err.Error(), "database is locked")
}

func TestParseKindAndMentions(t *testing.T) {
	for in, want := range map[string]Kind{"contacts": KindContact, "Document": KindDocument, " tasks ": KindTask} {
		got, ok := ParseKind(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := ParseKind("projects")
	assert.False(t, ok)

	m := Mentions(map[string][]string{
		"contacts": {"Marc", " "},
		"projects": {"Apollo"},
		"tasks":    {"venue"},
	})
	assert.Equal(t, map[Kind][]string{KindContact: {"Marc"}, KindTask: {"venue"}}, m)
	assert.Equal(t, "contact:Marc", Reference{Kind: KindContact, Mention: "Marc"}.Key())
}

func TestMissingPrompt(t *testing.T) {
	assert.Empty(t, Missing(nil))

	msg := Missing([]string{"contact:Zoe", "document:roadmap"}, "the meeting date")
	assert.Contains(t, msg, `contact named "Zoe"`)
	assert.Contains(t, msg, `document do you mean by "roadmap"`)
	assert.Contains(t, msg, "- the meeting date")
}
