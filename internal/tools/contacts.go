package tools

import (
	"context"
	"fmt"

	"github.com/rahul/conduit/internal/resolver"
	"github.com/rahul/conduit/internal/store"
)

type ContactStore interface {
	UpsertContact(ctx context.Context, c store.Contact) (*store.Contact, error)
}

// ContactTool looks up contacts through the entity resolver and records new
// ones in the store.
type ContactTool struct {
	Store    ContactStore
	Resolver *resolver.Resolver
}

func NewContactTool(s ContactStore, r *resolver.Resolver) *ContactTool {
	return &ContactTool{Store: s, Resolver: r}
}

func (c *ContactTool) Name() string {
	return "contacts"
}

func (c *ContactTool) Actions() map[string]string {
	return map[string]string{
		"resolve_contact": "Find a contact. Params: name or email.",
		"upsert_contact":  "Create or complete a contact. Params: email, name, role, phone (existing values are kept).",
	}
}

func (c *ContactTool) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	switch action {
	case "resolve_contact":
		query := stringParam(params, "email", "name", "query", "contact")
		if err := requireParam(action, "name", query); err != nil {
			return nil, err
		}
		contact, err := c.find(ctx, query)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"id":    contact.ID,
			"name":  contact.Name,
			"email": contact.Email,
			"role":  contact.Role,
			"phone": contact.Phone,
		}, nil

	case "upsert_contact":
		contact, err := c.Store.UpsertContact(ctx, store.Contact{
			Email:          stringParam(params, "email"),
			Name:           stringParam(params, "name"),
			Role:           stringParam(params, "role"),
			Phone:          stringParam(params, "phone"),
			ConversationID: chatOf(ctx, params),
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "saved", "id": contact.ID, "email": contact.Email, "name": contact.Name}, nil
	}
	return nil, unknownAction(c.Name(), action)
}

func (c *ContactTool) find(ctx context.Context, query string) (*store.Contact, error) {
	record, ok, err := c.Resolver.ResolveOne(ctx, resolver.Reference{Kind: resolver.KindContact, Mention: query})
	if err != nil {
		return nil, err
	}
	contact, isContact := record.(store.Contact)
	if !ok || !isContact {
		return nil, fmt.Errorf("no contact matching %q", query)
	}
	return &contact, nil
}
