package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	historyTTL    = 24 * time.Hour
	historyMaxLen = 20
)

// HistoryStore keeps the recent turns per phone number.
type HistoryStore interface {
	Append(ctx context.Context, phone string, msgs ...Message) error
	Recent(ctx context.Context, phone string, n int) ([]Message, error)
}

// RedisHistoryStore keeps a capped list per phone that expires a day after
// the last message.
type RedisHistoryStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewRedisHistoryStore wraps a Redis client.
func NewRedisHistoryStore(client *redis.Client, tracer trace.Tracer) *RedisHistoryStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("travel-enquiry-bot/internal/conversation/history")
	}
	return &RedisHistoryStore{redis: client, tracer: tracer}
}

func (s *RedisHistoryStore) Append(ctx context.Context, phone string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "conversation.history.append")
	defer span.End()
	span.SetAttributes(attribute.Int("history.count", len(msgs)))

	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("conversation: failed to marshal history: %w", err)
		}
		values = append(values, data)
	}

	key := historyKey(phone)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, -historyMaxLen, -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

func (s *RedisHistoryStore) Recent(ctx context.Context, phone string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	ctx, span := s.tracer.Start(ctx, "conversation.history.recent")
	defer span.End()

	raw, err := s.redis.LRange(ctx, historyKey(phone), int64(-n), -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}
	history := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: failed to decode history: %w", err)
		}
		history = append(history, m)
	}
	return history, nil
}

func historyKey(phone string) string {
	return fmt.Sprintf("history:%s", phone)
}

// MemoryHistoryStore is an in-process HistoryStore for tests and local runs.
type MemoryHistoryStore struct {
	mu      sync.Mutex
	history map[string][]Message
}

// NewMemoryHistoryStore creates an empty store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{history: make(map[string][]Message)}
}

func (s *MemoryHistoryStore) Append(_ context.Context, phone string, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.history[phone], msgs...)
	if len(h) > historyMaxLen {
		h = h[len(h)-historyMaxLen:]
	}
	s.history[phone] = h
	return nil
}

func (s *MemoryHistoryStore) Recent(_ context.Context, phone string, n int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history[phone]
	if n <= 0 {
		return nil, nil
	}
	if len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]Message(nil), h...), nil
}
