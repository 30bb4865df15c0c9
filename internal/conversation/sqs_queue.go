package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQS caps long polling at 20 seconds and batches at 10 messages.
const (
	sqsMaxWait  = 20 * time.Second
	sqsMaxBatch = 10
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue carries turns over an SQS queue. On a FIFO queue turns are grouped
// by sender phone, so one traveller's messages reach the engine in order, and
// the job id doubles as the deduplication id.
type SQSQueue struct {
	client   sqsAPI
	queueURL string
	fifo     bool
}

// NewSQSQueue wraps client for the queue at queueURL.
func NewSQSQueue(client sqsAPI, queueURL string) *SQSQueue {
	if client == nil {
		panic("conversation: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("conversation: SQS queueURL cannot be empty")
	}
	return &SQSQueue{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

func (q *SQSQueue) Push(ctx context.Context, turn queuedTurn) error {
	body, err := turn.marshal()
	if err != nil {
		return err
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(body),
	}
	if q.fifo {
		group := turn.Message.From
		if group == "" {
			group = turn.JobID
		}
		input.MessageGroupId = aws.String(group)
		input.MessageDeduplicationId = aws.String(turn.JobID)
	}
	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("conversation: SQS send for job %s: %w", turn.JobID, err)
	}
	return nil
}

func (q *SQSQueue) Pull(ctx context.Context, max int, wait time.Duration) ([]pulledTurn, error) {
	if max <= 0 || max > sqsMaxBatch {
		max = sqsMaxBatch
	}
	if wait > sqsMaxWait {
		wait = sqsMaxWait
	}
	output, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(wait / time.Second),
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: SQS receive: %w", err)
	}

	turns := make([]pulledTurn, 0, len(output.Messages))
	for _, msg := range output.Messages {
		turn, decodeErr := unmarshalTurn(aws.ToString(msg.Body))
		receives, _ := strconv.Atoi(msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])
		turns = append(turns, pulledTurn{
			queuedTurn: turn,
			handle:     aws.ToString(msg.ReceiptHandle),
			receives:   receives,
			decodeErr:  decodeErr,
		})
	}
	return turns, nil
}

func (q *SQSQueue) Done(ctx context.Context, turn pulledTurn) error {
	if turn.handle == "" {
		return nil
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(turn.handle),
	})
	if err != nil {
		return fmt.Errorf("conversation: SQS delete for job %s: %w", turn.JobID, err)
	}
	return nil
}
