package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Contact struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

const contactColumns = `id, name, email, role, phone, conversation_id, created_at_unix`

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanContact(row interface{ Scan(...any) error }) (Contact, error) {
	var c Contact
	var created sql.NullInt64
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Role, &c.Phone, &c.ConversationID, &created); err != nil {
		return Contact{}, err
	}
	c.CreatedAt = fromUnix(created)
	return c, nil
}

func (s *Store) queryContacts(ctx context.Context, query string, args ...any) ([]Contact, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ContactByEmail is an exact, case-insensitive lookup.
func (s *Store) ContactByEmail(ctx context.Context, email string) (*Contact, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE email = ? LIMIT 1`, NormalizeEmail(email))
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("contact by email: %w", err)
	}
	return &c, nil
}

func (s *Store) SearchContactsByName(ctx context.Context, query string, limit int) ([]Contact, error) {
	out, err := s.queryContacts(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE LOWER(name) LIKE ? ESCAPE '\' ORDER BY id LIMIT ?`,
		likePattern(query), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search contacts by name: %w", err)
	}
	return out, nil
}

func (s *Store) SearchContactsByEmail(ctx context.Context, query string, limit int) ([]Contact, error) {
	out, err := s.queryContacts(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE email LIKE ? ESCAPE '\' ORDER BY id LIMIT ?`,
		likePattern(query), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search contacts by email: %w", err)
	}
	return out, nil
}

// UpsertContact creates the contact or, when the email already exists, fills
// only the fields that are still empty on the stored record.
func (s *Store) UpsertContact(ctx context.Context, in Contact) (*Contact, error) {
	in.Email = NormalizeEmail(in.Email)
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return nil, fmt.Errorf("%w: contact email %q", ErrInvalidRecord, in.Email)
	}

	existing, err := s.ContactByEmail(ctx, in.Email)
	if errors.Is(err, ErrNotFound) {
		res, err := s.DB.ExecContext(ctx,
			`INSERT INTO contacts (name, email, role, phone, conversation_id, created_at_unix) VALUES (?, ?, ?, ?, ?, ?)`,
			strings.TrimSpace(in.Name), in.Email, in.Role, in.Phone, in.ConversationID, time.Now().UTC().Unix())
		if err != nil {
			return nil, fmt.Errorf("create contact: %w", err)
		}
		id, _ := res.LastInsertId()
		return s.contactByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	patch := map[string]string{}
	if in.Name != "" && existing.Name == "" {
		patch["name"] = strings.TrimSpace(in.Name)
	}
	if in.Role != "" && existing.Role == "" {
		patch["role"] = in.Role
	}
	if in.Phone != "" && existing.Phone == "" {
		patch["phone"] = in.Phone
	}
	if in.ConversationID != "" && existing.ConversationID == "" {
		patch["conversation_id"] = in.ConversationID
	}
	if len(patch) == 0 {
		return existing, nil
	}

	sets := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch)+1)
	for _, col := range []string{"name", "role", "phone", "conversation_id"} {
		if v, ok := patch[col]; ok {
			sets = append(sets, col+" = ?")
			args = append(args, v)
		}
	}
	args = append(args, existing.ID)
	if _, err := s.DB.ExecContext(ctx, `UPDATE contacts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	return s.contactByID(ctx, existing.ID)
}

func (s *Store) contactByID(ctx context.Context, id int64) (*Contact, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
