// Package events remembers which inbound provider messages were already
// accepted so webhook redeliveries are dropped.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProviderWhatsApp keys WhatsApp Cloud API message ids.
const ProviderWhatsApp = "whatsapp"

// purgeBatch caps each DELETE so a large backlog never holds a long lock.
const purgeBatch = 5000

var errNoEventID = errors.New("events: event id required")

func eventKey(provider, eventID string) (string, error) {
	if strings.TrimSpace(eventID) == "" {
		return "", errNoEventID
	}
	return provider + ":" + eventID, nil
}

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore keeps seen event ids in the processed_events table.
type ProcessedStore struct {
	db pgExecutor
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{db: pool}
}

func newProcessedStore(db pgExecutor) *ProcessedStore {
	return &ProcessedStore{db: db}
}

func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	var seen bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2)`,
		provider, eventID,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("events: lookup %s: %w", eventID, err)
	}
	return seen, nil
}

// MarkProcessed reports whether this call recorded the id. False means an
// earlier delivery already had.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if _, err := eventKey(provider, eventID); err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx,
		`INSERT INTO processed_events (provider, event_id) VALUES ($1, $2) ON CONFLICT (provider, event_id) DO NOTHING`,
		provider, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("events: record %s: %w", eventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Purge deletes rows older than the cutoff in batches and returns the total.
func (s *ProcessedStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	var total int64
	for {
		tag, err := s.db.Exec(ctx, `
			DELETE FROM processed_events
			WHERE (provider, event_id) IN (
				SELECT provider, event_id FROM processed_events
				WHERE processed_at < $1
				LIMIT $2
			)`, olderThan, purgeBatch)
		if err != nil {
			return total, fmt.Errorf("events: purge: %w", err)
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < purgeBatch || ctx.Err() != nil {
			return total, nil
		}
	}
}

// MemoryProcessedStore is the in-process variant used without a database.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryProcessedStore() *MemoryProcessedStore {
	return &MemoryProcessedStore{seen: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryProcessedStore) AlreadyProcessed(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[provider+":"+eventID]
	return ok, nil
}

func (s *MemoryProcessedStore) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	key, err := eventKey(provider, eventID)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = s.now()
	return true, nil
}

func (s *MemoryProcessedStore) Purge(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, at := range s.seen {
		if at.Before(olderThan) {
			delete(s.seen, key)
			n++
		}
	}
	return n, nil
}
