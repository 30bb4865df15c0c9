package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

const (
	defaultConcurrency = 2
	defaultPollWait    = 10 * time.Second
	defaultPollBatch   = 5
	maxPollWait        = 20 * time.Second
	maxPollBatch       = 10

	// A turn seen this many times has crashed workers before; it is
	// recorded as failed instead of being run again.
	maxTurnReceives = 5

	ackTimeout       = 5 * time.Second
	replySendTimeout = 15 * time.Second
	pollBackoffCap   = 8 * time.Second
)

// Processor runs one turn through the engine.
type Processor interface {
	HandleInbound(ctx context.Context, msg InboundMessage) (*Response, error)
}

// Worker pulls turns off the queue, runs them and sends the reply.
type Worker struct {
	processor Processor
	queue     turnQueue
	jobs      JobUpdater
	messenger ReplyMessenger
	logger    *logging.Logger

	concurrency int
	pollWait    time.Duration
	pollBatch   int

	wg sync.WaitGroup
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithConcurrency sets how many turns are processed at once.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithPollWait sets how long one poll waits for turns; zero polls forever
// on queues that allow it.
func WithPollWait(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d >= 0 {
			w.pollWait = min(d, maxPollWait)
		}
	}
}

// WithPollBatch sets how many turns one poll may return.
func WithPollBatch(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.pollBatch = min(n, maxPollBatch)
		}
	}
}

// NewWorker builds a worker. jobs and messenger may be nil.
func NewWorker(processor Processor, queue turnQueue, jobs JobUpdater, messenger ReplyMessenger, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Worker{
		processor:   processor,
		queue:       queue,
		jobs:        jobs,
		messenger:   messenger,
		logger:      logger,
		concurrency: defaultConcurrency,
		pollWait:    defaultPollWait,
		pollBatch:   defaultPollBatch,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the pollers. They stop when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 1; i <= w.concurrency; i++ {
		w.wg.Add(1)
		go w.poll(ctx, i)
	}
}

// Wait blocks until every poller has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) poll(ctx context.Context, poller int) {
	defer w.wg.Done()
	logger := w.logger.With("poller", poller)
	logger.Debug("conversation poller started")

	backoff := 500 * time.Millisecond
	for ctx.Err() == nil {
		turns, err := w.queue.Pull(ctx, w.pollBatch, w.pollWait)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break
			}
			logger.Error("failed to pull turns", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, pollBackoffCap)
			continue
		}
		backoff = 500 * time.Millisecond

		for _, turn := range turns {
			w.handle(ctx, turn)
		}
	}
	logger.Debug("conversation poller stopped")
}

func (w *Worker) handle(ctx context.Context, turn pulledTurn) {
	defer w.ack(turn)

	if turn.decodeErr != nil {
		w.logger.Error("dropping undecodable turn", "error", turn.decodeErr, "job_id", turn.JobID)
		return
	}
	if turn.receives > maxTurnReceives {
		w.logger.Error("giving up on turn", "job_id", turn.JobID, "receives", turn.receives)
		w.finish(ctx, turn, JobOutcome{Err: fmt.Errorf("abandoned after %d deliveries", turn.receives)})
		return
	}
	if turn.receives > 1 {
		w.logger.Warn("turn redelivered", "job_id", turn.JobID, "receives", turn.receives)
	}

	w.logger.Info("processing turn", "job_id", turn.JobID, "message_id", turn.Message.MessageID)
	resp, err := w.processor.HandleInbound(ctx, turn.Message)
	if err != nil {
		w.logger.Error("turn failed", "error", err, "job_id", turn.JobID)
	}
	if resp != nil && resp.Reply != "" {
		w.reply(ctx, turn, resp)
	}
	w.finish(ctx, turn, JobOutcome{Response: resp, Err: err})
}

func (w *Worker) reply(ctx context.Context, turn pulledTurn, resp *Response) {
	if w.messenger == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, replySendTimeout)
	defer cancel()
	err := w.messenger.SendReply(sendCtx, OutboundReply{
		To:        turn.Message.From,
		Body:      resp.Reply,
		EnquiryID: resp.EnquiryID,
		ReplyTo:   turn.Message.MessageID,
	})
	if err != nil {
		w.logger.Error("failed to send reply", "error", err, "job_id", turn.JobID)
	}
}

func (w *Worker) finish(ctx context.Context, turn pulledTurn, outcome JobOutcome) {
	if !turn.Tracked || w.jobs == nil {
		return
	}
	if err := w.jobs.Finish(ctx, turn.JobID, outcome); err != nil {
		w.logger.Error("failed to record job outcome", "error", err, "job_id", turn.JobID)
	}
}

// ack runs on a fresh context so a shutdown mid-turn still releases the turn.
func (w *Worker) ack(turn pulledTurn) {
	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()
	if err := w.queue.Done(ctx, turn); err != nil {
		w.logger.Error("failed to ack turn", "error", err, "job_id", turn.JobID)
	}
}
