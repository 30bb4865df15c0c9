package conversation

import (
	"context"
	"time"
)

// MemoryQueue hands turns to an in-process worker over a buffered channel.
// Turns are never redelivered, so Done only updates the in-flight count.
type MemoryQueue struct {
	turns    chan queuedTurn
	inFlight chan struct{}
}

// NewMemoryQueue creates a queue holding up to buffer undelivered turns.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{
		turns:    make(chan queuedTurn, buffer),
		inFlight: make(chan struct{}, buffer),
	}
}

// Push blocks while the buffer is full.
func (q *MemoryQueue) Push(ctx context.Context, turn queuedTurn) error {
	select {
	case q.turns <- turn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pull waits for at least one turn. A zero wait means no timeout.
func (q *MemoryQueue) Pull(ctx context.Context, max int, wait time.Duration) ([]pulledTurn, error) {
	if max <= 0 {
		max = 1
	}
	var expired <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		expired = timer.C
	}

	var first queuedTurn
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, nil
	case first = <-q.turns:
	}

	batch := []pulledTurn{q.lease(first)}
	for len(batch) < max {
		select {
		case next := <-q.turns:
			batch = append(batch, q.lease(next))
		default:
			return batch, nil
		}
	}
	return batch, nil
}

func (q *MemoryQueue) Done(context.Context, pulledTurn) error {
	select {
	case <-q.inFlight:
	default:
	}
	return nil
}

// Len reports turns queued but not yet pulled.
func (q *MemoryQueue) Len() int {
	return len(q.turns)
}

// InFlight reports turns pulled but not yet marked done.
func (q *MemoryQueue) InFlight() int {
	return len(q.inFlight)
}

func (q *MemoryQueue) lease(turn queuedTurn) pulledTurn {
	select {
	case q.inFlight <- struct{}{}:
	default:
	}
	return pulledTurn{queuedTurn: turn, receives: 1}
}
