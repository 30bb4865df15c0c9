package enquiry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores each enquiry as a JSONB document next to the
// columns the dashboard filters on.
type PostgresRepository struct {
	db pgQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("enquiry: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(db pgQuerier) *PostgresRepository {
	if db == nil {
		panic("enquiry: querier required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindActive(ctx context.Context, phone string) (*Enquiry, error) {
	query := `
		SELECT document FROM travel_enquiries
		WHERE phone_number = $1 AND status IN ('new', 'in_progress')
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(ctx, "find active", query, phone)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Enquiry, error) {
	query := `SELECT document FROM travel_enquiries WHERE id = $1`
	return r.scanOne(ctx, "get by id", query, id)
}

func (r *PostgresRepository) Create(ctx context.Context, e *Enquiry) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("enquiry: encode document: %w", err)
	}
	query := `
		INSERT INTO travel_enquiries (
			id, phone_number, status, conversation_stage, destination, trip_type,
			callback_requested, tags, document, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := r.db.Exec(ctx, query,
		e.ID,
		e.PhoneNumber,
		string(e.Status),
		string(e.ConversationStage),
		e.Destination,
		e.TripType,
		e.CallbackRequested,
		e.Tags,
		doc,
		e.CreatedAt,
		e.UpdatedAt,
	); err != nil {
		return fmt.Errorf("enquiry: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Save(ctx context.Context, e *Enquiry) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("enquiry: encode document: %w", err)
	}
	query := `
		UPDATE travel_enquiries
		SET status = $2, conversation_stage = $3, destination = $4, trip_type = $5,
			callback_requested = $6, tags = $7, document = $8, updated_at = $9
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		e.ID,
		string(e.Status),
		string(e.ConversationStage),
		e.Destination,
		e.TripType,
		e.CallbackRequested,
		e.Tags,
		doc,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("enquiry: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]*Enquiry, error) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(string(filter.Status)))
	}
	if len(filter.Tags) > 0 {
		clauses = append(clauses, "tags && "+arg(filter.Tags))
	}
	if filter.CallbackRequested != nil {
		clauses = append(clauses, "callback_requested = "+arg(*filter.CallbackRequested))
	}
	if filter.Destination != "" {
		clauses = append(clauses, "destination ~* "+arg(regexp.QuoteMeta(filter.Destination)))
	}

	query := "SELECT document FROM travel_enquiries"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT " + arg(filter.limit())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("enquiry: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Enquiry
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("enquiry: scan failed: %w", err)
		}
		e, err := decodeDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("enquiry: list rows: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status) (*Enquiry, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	query := `
		UPDATE travel_enquiries
		SET status = $2,
			updated_at = $3,
			document = document || jsonb_build_object('status', $2::text, 'updatedAt', $4::text)
		WHERE id = $1
		RETURNING document
	`
	return r.scanOne(ctx, "update status", query, id, string(status), now, now.Format(time.RFC3339Nano))
}

func (r *PostgresRepository) Stats(ctx context.Context) (Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'new'),
			COUNT(*) FILTER (WHERE status = 'in_progress'),
			COUNT(*) FILTER (WHERE callback_requested AND status IN ('new', 'in_progress')),
			COUNT(*) FILTER (WHERE 'honeymoon' = ANY(tags)),
			COUNT(*) FILTER (WHERE 'group' = ANY(tags)),
			COUNT(*) FILTER (WHERE 'international' = ANY(tags))
		FROM travel_enquiries
	`
	var s Stats
	if err := r.db.QueryRow(ctx, query).Scan(
		&s.Total,
		&s.NewEnquiries,
		&s.InProgress,
		&s.CallbackRequests,
		&s.HoneymoonLeads,
		&s.GroupLeads,
		&s.InternationalLeads,
	); err != nil {
		return Stats{}, fmt.Errorf("enquiry: stats failed: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) scanOne(ctx context.Context, op, query string, args ...any) (*Enquiry, error) {
	var doc []byte
	if err := r.db.QueryRow(ctx, query, args...).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("enquiry: %s failed: %w", op, err)
	}
	return decodeDocument(doc)
}

func decodeDocument(doc []byte) (*Enquiry, error) {
	var e Enquiry
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("enquiry: decode document: %w", err)
	}
	if e.CollectedData == nil {
		e.CollectedData = map[string]AuditEntry{}
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	return &e, nil
}
