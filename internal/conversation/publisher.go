package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

// Publisher hands inbound WhatsApp messages to the conversation workers.
type Publisher struct {
	queue  turnQueue
	jobs   JobRecorder
	logger *logging.Logger
}

// NewPublisher creates a publisher. With nil jobs no job records are opened.
func NewPublisher(queue turnQueue, jobs JobRecorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, jobs: jobs, logger: logger}
}

// EnqueueInbound queues one turn and returns its job id, which is the
// WhatsApp message id when there is one. If the job record cannot be opened
// the turn is still queued, untracked, so the traveller gets a reply.
func (p *Publisher) EnqueueInbound(ctx context.Context, msg InboundMessage, opts ...PublishOption) (string, error) {
	turn := newQueuedTurn(msg, p.jobs != nil, opts...)

	if turn.Tracked {
		message := turn.Message
		err := p.jobs.Open(ctx, &JobRecord{JobID: turn.JobID, Message: &message})
		switch {
		case errors.Is(err, ErrJobExists):
			p.logger.Info("job already recorded, queueing untracked", "job_id", turn.JobID)
			turn.Tracked = false
		case err != nil:
			p.logger.Warn("failed to open job record", "job_id", turn.JobID, "error", err)
			turn.Tracked = false
		}
	}

	if err := p.queue.Push(ctx, turn); err != nil {
		return "", fmt.Errorf("conversation: enqueue job %s: %w", turn.JobID, err)
	}
	p.logger.Debug("turn queued", "job_id", turn.JobID, "tracked", turn.Tracked)
	return turn.JobID, nil
}
