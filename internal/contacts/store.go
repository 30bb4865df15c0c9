package contacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SQLStore keeps contacts and conversations in PostgreSQL. Excluded numbers
// (internal test phones) are never written and never listed.
type SQLStore struct {
	db       *sql.DB
	excluded exclusions
	now      func() time.Time
	newID    func() string
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, excludePhones []string) *SQLStore {
	if db == nil {
		panic("contacts: db cannot be nil")
	}
	return &SQLStore{
		db:       db,
		excluded: newExclusions(excludePhones),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

const touchQuery = `
INSERT INTO contacts (phone_number, first_contact_date, last_contact_date, total_conversations)
VALUES ($1, $2, $2, 1)
ON CONFLICT (phone_number) DO UPDATE
SET last_contact_date = EXCLUDED.last_contact_date,
    total_conversations = contacts.total_conversations + 1`

// Touch records that phone has written in.
func (s *SQLStore) Touch(ctx context.Context, phone string) error {
	if s.excluded.has(phone) {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, touchQuery, phone, s.now()); err != nil {
		return fmt.Errorf("contacts: touch %s: %w", phone, err)
	}
	return nil
}

// SaveExchange logs one exchange and adds its tokens to the contact totals in
// a single transaction.
func (s *SQLStore) SaveExchange(ctx context.Context, x Exchange) error {
	if s.excluded.has(x.Phone) {
		return nil
	}
	if x.At.IsZero() {
		x.At = s.now()
	}
	conv := x.conversation(s.newID())
	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("contacts: marshal messages: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("contacts: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO conversations (id, phone_number, messages, total_input_tokens, total_output_tokens, started_at, last_message_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		conv.ID, conv.PhoneNumber, messages, conv.TotalInputTokens, conv.TotalOutputTokens, conv.StartedAt, conv.LastMessageAt,
	); err != nil {
		return fmt.Errorf("contacts: insert conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE contacts
SET total_input_tokens = total_input_tokens + $2,
    total_output_tokens = total_output_tokens + $3
WHERE phone_number = $1`,
		x.Phone, x.InputTokens, x.OutputTokens,
	); err != nil {
		return fmt.Errorf("contacts: update token totals: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("contacts: commit: %w", err)
	}
	return nil
}

const contactColumns = `phone_number, first_contact_date, last_contact_date, total_conversations, total_input_tokens, total_output_tokens`

// ListContacts pages through contacts, most recently active first. search
// matches any part of the phone number.
func (s *SQLStore) ListContacts(ctx context.Context, search string, page Page) ([]Contact, int, error) {
	page = page.Normalize()
	pattern := "%" + escapeLike(strings.TrimSpace(search)) + "%"
	excluded := pq.Array(s.excluded.list())

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contacts WHERE phone_number ILIKE $1 AND phone_number <> ALL($2)`,
		pattern, excluded,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("contacts: count contacts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+contactColumns+` FROM contacts
WHERE phone_number ILIKE $1 AND phone_number <> ALL($2)
ORDER BY last_contact_date DESC
LIMIT $3 OFFSET $4`, pattern, excluded, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("contacts: list contacts: %w", err)
	}
	defer rows.Close()

	list := []Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("contacts: scan contact: %w", err)
		}
		list = append(list, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("contacts: list contacts: %w", err)
	}
	return list, total, nil
}

// GetContact loads one contact.
func (s *SQLStore) GetContact(ctx context.Context, phone string) (*Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE phone_number = $1`, phone)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("contacts: get %s: %w", phone, err)
	}
	return c, nil
}

// ListConversations pages through a phone's logged exchanges, newest first.
func (s *SQLStore) ListConversations(ctx context.Context, phone string, page Page) ([]Conversation, int, error) {
	page = page.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE phone_number = $1`, phone,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("contacts: count conversations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, phone_number, messages, total_input_tokens, total_output_tokens, started_at, last_message_at
FROM conversations
WHERE phone_number = $1
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`, phone, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("contacts: list conversations: %w", err)
	}
	defer rows.Close()

	list := []Conversation{}
	for rows.Next() {
		var (
			c   Conversation
			raw []byte
		)
		if err := rows.Scan(&c.ID, &c.PhoneNumber, &raw, &c.TotalInputTokens, &c.TotalOutputTokens, &c.StartedAt, &c.LastMessageAt); err != nil {
			return nil, 0, fmt.Errorf("contacts: scan conversation: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &c.Messages); err != nil {
				return nil, 0, fmt.Errorf("contacts: decode messages: %w", err)
			}
		}
		if c.Messages == nil {
			c.Messages = []Message{}
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("contacts: list conversations: %w", err)
	}
	return list, total, nil
}

// Stats sums contacts, conversations and tokens, ignoring excluded numbers.
func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	excluded := pq.Array(s.excluded.list())
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(total_input_tokens), 0), COALESCE(SUM(total_output_tokens), 0)
FROM contacts WHERE phone_number <> ALL($1)`, excluded,
	).Scan(&st.TotalContacts, &st.TotalInputTokens, &st.TotalOutputTokens); err != nil {
		return Stats{}, fmt.Errorf("contacts: contact stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE phone_number <> ALL($1)`, excluded,
	).Scan(&st.TotalConversations); err != nil {
		return Stats{}, fmt.Errorf("contacts: conversation stats: %w", err)
	}
	st.TotalTokens = st.TotalInputTokens + st.TotalOutputTokens
	return st, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (*Contact, error) {
	var c Contact
	if err := row.Scan(&c.PhoneNumber, &c.FirstContactDate, &c.LastContactDate, &c.TotalConversations, &c.TotalInputTokens, &c.TotalOutputTokens); err != nil {
		return nil, err
	}
	return &c, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
