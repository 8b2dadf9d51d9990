package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/conduit/internal/orchestrator"
	"github.com/rahul/conduit/internal/store"
)

// ErrUnresolved is returned by callers that refuse to build a plan while
// mentions remain unresolved.
var ErrUnresolved = errors.New("unresolved entities")

type Kind string

const (
	KindContact  Kind = "contact"
	KindDocument Kind = "document"
	KindTask     Kind = "task"
)

// Kinds lists every kind in resolution order.
var Kinds = []Kind{KindContact, KindDocument, KindTask}

// ParseKind accepts singular and plural kind names in any case.
func ParseKind(s string) (Kind, bool) {
	k := strings.ToLower(strings.TrimSpace(s))
	k = strings.TrimSuffix(k, "s")
	for _, kind := range Kinds {
		if string(kind) == k {
			return kind, true
		}
	}
	return "", false
}

// Reference is one free-text mention of an entity of a given kind.
type Reference struct {
	Kind    Kind
	Mention string
}

func (r Reference) Key() string {
	return orchestrator.EntityKey(string(r.Kind), r.Mention)
}

// Mentions converts classifier output ("contacts": ["Marc"]) into typed
// mentions, dropping unknown kinds and blank mentions.
func Mentions(entities map[string][]string) map[Kind][]string {
	out := make(map[Kind][]string)
	for name, values := range entities {
		kind, ok := ParseKind(name)
		if !ok {
			continue
		}
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				out[kind] = append(out[kind], v)
			}
		}
	}
	return out
}

// PendingMeetingSummary is the record bound to a meeting-summary mention that
// has no stored document yet; the plan is expected to generate one.
var PendingMeetingSummary = map[string]any{"type": "pending_meeting_summary"}

type ContactFinder interface {
	ContactByEmail(ctx context.Context, email string) (*store.Contact, error)
	SearchContactsByName(ctx context.Context, query string, limit int) ([]store.Contact, error)
	SearchContactsByEmail(ctx context.Context, query string, limit int) ([]store.Contact, error)
}

type DocumentFinder interface {
	SearchDocumentsByTitle(ctx context.Context, query string, limit int) ([]store.Document, error)
	SearchDocumentsByContent(ctx context.Context, query string, limit int) ([]store.Document, error)
}

type TaskFinder interface {
	SearchTasksByDescription(ctx context.Context, query string, limit int) ([]store.Task, error)
	SearchTasksByAssignee(ctx context.Context, query string, limit int) ([]store.Task, error)
}

// Backend is everything the resolver reads from; *store.Store implements it.
type Backend interface {
	ContactFinder
	DocumentFinder
	TaskFinder
}

type Resolver struct {
	backend Backend
}

func New(backend Backend) *Resolver {
	return &Resolver{backend: backend}
}

// Resolve binds each mention to the first matching record. Mentions with no
// match come back as unresolved "kind:mention" keys; store failures are
// returned as errors.
func (r *Resolver) Resolve(ctx context.Context, mentions map[Kind][]string) (orchestrator.Resolutions, []string, error) {
	resolved := orchestrator.Resolutions{}
	var unresolved []string
	seen := make(map[string]bool)

	for _, kind := range Kinds {
		for _, mention := range mentions[kind] {
			mention = strings.TrimSpace(mention)
			ref := Reference{Kind: kind, Mention: mention}
			if mention == "" || seen[ref.Key()] {
				continue
			}
			seen[ref.Key()] = true

			record, ok, err := r.ResolveOne(ctx, ref)
			if err != nil {
				return nil, nil, fmt.Errorf("resolve %s: %w", ref.Key(), err)
			}
			if !ok {
				unresolved = append(unresolved, ref.Key())
				continue
			}
			resolved.Add(string(kind), mention, record)
		}
	}
	return resolved, unresolved, nil
}

func (r *Resolver) ResolveOne(ctx context.Context, ref Reference) (any, bool, error) {
	switch ref.Kind {
	case KindContact:
		return r.contact(ctx, ref.Mention)
	case KindDocument:
		return r.document(ctx, ref.Mention)
	case KindTask:
		return r.task(ctx, ref.Mention)
	}
	return nil, false, nil
}

func (r *Resolver) contact(ctx context.Context, mention string) (any, bool, error) {
	if strings.Contains(mention, "@") {
		c, err := r.backend.ContactByEmail(ctx, mention)
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return *c, true, nil
	}

	byName, err := r.backend.SearchContactsByName(ctx, mention, 1)
	if err != nil {
		return nil, false, err
	}
	if len(byName) > 0 {
		return byName[0], true, nil
	}
	byEmail, err := r.backend.SearchContactsByEmail(ctx, mention, 1)
	if err != nil {
		return nil, false, err
	}
	if len(byEmail) > 0 {
		return byEmail[0], true, nil
	}
	return nil, false, nil
}

func (r *Resolver) document(ctx context.Context, mention string) (any, bool, error) {
	byTitle, err := r.backend.SearchDocumentsByTitle(ctx, mention, 1)
	if err != nil {
		return nil, false, err
	}
	if len(byTitle) > 0 {
		return byTitle[0], true, nil
	}
	byContent, err := r.backend.SearchDocumentsByContent(ctx, mention, 1)
	if err != nil {
		return nil, false, err
	}
	if len(byContent) > 0 {
		return byContent[0], true, nil
	}
	if looksLikeMeetingSummary(mention) {
		return PendingMeetingSummary, true, nil
	}
	return nil, false, nil
}

func (r *Resolver) task(ctx context.Context, mention string) (any, bool, error) {
	byDesc, err := r.backend.SearchTasksByDescription(ctx, mention, 1)
	if err != nil {
		return nil, false, err
	}
	if len(byDesc) > 0 {
		return byDesc[0], true, nil
	}
	byAssignee, err := r.backend.SearchTasksByAssignee(ctx, mention, 1)
	if err != nil {
		return nil, false, err
	}
	if len(byAssignee) > 0 {
		return byAssignee[0], true, nil
	}
	return nil, false, nil
}

func looksLikeMeetingSummary(mention string) bool {
	m := strings.ToLower(mention)
	return strings.Contains(m, "meeting") && strings.Contains(m, "summary")
}
