package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// turnSchema versions the queued turn encoding so old workers can reject
// envelopes they do not understand.
const turnSchema = 1

// turnQueue moves inbound turns from the webhook to the workers.
type turnQueue interface {
	Push(ctx context.Context, turn queuedTurn) error
	Pull(ctx context.Context, max int, wait time.Duration) ([]pulledTurn, error)
	Done(ctx context.Context, turn pulledTurn) error
}

// queuedTurn is one customer message waiting for the engine.
type queuedTurn struct {
	JobID   string         `json:"jobId"`
	Schema  int            `json:"schema"`
	Message InboundMessage `json:"message"`
	Tracked bool           `json:"tracked"`
}

// pulledTurn is a queuedTurn leased to a worker. decodeErr is set when the
// transport delivered a body that is not a turn; the worker still acks it.
type pulledTurn struct {
	queuedTurn
	handle    string
	receives  int
	decodeErr error
}

// PublishOption adjusts a turn before it is queued.
type PublishOption func(*queuedTurn)

// WithoutJobTracking skips the job record for this turn.
func WithoutJobTracking() PublishOption {
	return func(t *queuedTurn) {
		t.Tracked = false
	}
}

func newQueuedTurn(msg InboundMessage, tracked bool, opts ...PublishOption) queuedTurn {
	turn := queuedTurn{
		JobID:   msg.MessageID,
		Schema:  turnSchema,
		Message: msg,
		Tracked: tracked,
	}
	for _, opt := range opts {
		opt(&turn)
	}
	if turn.JobID == "" {
		turn.JobID = uuid.NewString()
	}
	return turn
}

func (t queuedTurn) marshal() (string, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("conversation: encode turn %s: %w", t.JobID, err)
	}
	return string(body), nil
}

func unmarshalTurn(body string) (queuedTurn, error) {
	var turn queuedTurn
	if err := json.Unmarshal([]byte(body), &turn); err != nil {
		return queuedTurn{}, fmt.Errorf("conversation: decode turn: %w", err)
	}
	if turn.Schema != turnSchema {
		return turn, fmt.Errorf("conversation: unsupported turn schema %d", turn.Schema)
	}
	return turn, nil
}
