package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	sent     []*sqs.SendMessageInput
	receive  *sqs.ReceiveMessageInput
	deleted  []string
	messages []sqstypes.Message
	sendErr  error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, params)
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.receive = params
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueuePushStandard(t *testing.T) {
	fake := &fakeSQS{}
	q := NewSQSQueue(fake, "https://sqs.local/travel-turns")

	require.NoError(t, q.Push(context.Background(), goaTurn("wamid.1")))
	require.Len(t, fake.sent, 1)
	assert.Equal(t, "https://sqs.local/travel-turns", aws.ToString(fake.sent[0].QueueUrl))
	assert.Nil(t, fake.sent[0].MessageGroupId)

	turn, err := unmarshalTurn(aws.ToString(fake.sent[0].MessageBody))
	require.NoError(t, err)
	assert.Equal(t, "wamid.1", turn.JobID)

	fake.sendErr = errors.New("throttled")
	assert.ErrorContains(t, q.Push(context.Background(), goaTurn("wamid.2")), "wamid.2")
}

func TestSQSQueuePushFIFOGroupsByPhone(t *testing.T) {
	fake := &fakeSQS{}
	q := NewSQSQueue(fake, "https://sqs.local/travel-turns.fifo")

	require.NoError(t, q.Push(context.Background(), goaTurn("wamid.1")))
	assert.Equal(t, "+919876543210", aws.ToString(fake.sent[0].MessageGroupId))
	assert.Equal(t, "wamid.1", aws.ToString(fake.sent[0].MessageDeduplicationId))
}

func TestSQSQueuePull(t *testing.T) {
	body, err := goaTurn("wamid.1").marshal()
	require.NoError(t, err)
	fake := &fakeSQS{messages: []sqstypes.Message{
		{
			Body:          aws.String(body),
			ReceiptHandle: aws.String("rh-1"),
			Attributes:    map[string]string{"ApproximateReceiveCount": "3"},
		},
		{Body: aws.String("garbage"), ReceiptHandle: aws.String("rh-2")},
	}}
	q := NewSQSQueue(fake, "https://sqs.local/travel-turns")

	turns, err := q.Pull(context.Background(), 50, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int32(sqsMaxBatch), fake.receive.MaxNumberOfMessages)
	assert.Equal(t, int32(20), fake.receive.WaitTimeSeconds)
	assert.Contains(t, fake.receive.MessageSystemAttributeNames, sqstypes.MessageSystemAttributeNameApproximateReceiveCount)

	require.Len(t, turns, 2)
	assert.Equal(t, "wamid.1", turns[0].JobID)
	assert.Equal(t, 3, turns[0].receives)
	assert.NoError(t, turns[0].decodeErr)
	assert.Error(t, turns[1].decodeErr)
	assert.Equal(t, "rh-2", turns[1].handle)
}

func TestSQSQueueDone(t *testing.T) {
	fake := &fakeSQS{}
	q := NewSQSQueue(fake, "https://sqs.local/travel-turns")

	require.NoError(t, q.Done(context.Background(), pulledTurn{}))
	require.NoError(t, q.Done(context.Background(), pulledTurn{handle: "rh-1"}))
	assert.Equal(t, []string{"rh-1"}, fake.deleted)
}
