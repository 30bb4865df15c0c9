package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

// Job records outlive the turn by a day so support can trace a complaint.
const jobRetention = 24 * time.Hour

// JobStatus is where a queued turn is in its lifecycle.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

var (
	// ErrJobNotFound indicates the requested job ID does not exist.
	ErrJobNotFound = errors.New("conversation: job not found")
	// ErrJobExists is returned by Open when the job id is already recorded,
	// which happens when WhatsApp redelivers a message.
	ErrJobExists = errors.New("conversation: job already recorded")
)

// JobRecord is the admin-visible trace of one queued turn.
type JobRecord struct {
	JobID      string          `dynamodbav:"jobId" json:"jobId"`
	Status     JobStatus       `dynamodbav:"status" json:"status"`
	Phone      string          `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	Message    *InboundMessage `dynamodbav:"message,omitempty" json:"message,omitempty"`
	EnquiryID  string          `dynamodbav:"enquiryId,omitempty" json:"enquiryId,omitempty"`
	Response   *Response       `dynamodbav:"response,omitempty" json:"response,omitempty"`
	Error      string          `dynamodbav:"error,omitempty" json:"error,omitempty"`
	Attempts   int             `dynamodbav:"attempts" json:"attempts"`
	QueuedAt   time.Time       `dynamodbav:"queuedAt" json:"queuedAt"`
	FinishedAt *time.Time      `dynamodbav:"finishedAt,omitempty" json:"finishedAt,omitempty"`
	ExpiresAt  int64           `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// JobOutcome is what the worker learned from one attempt at a turn. A failed
// turn may still carry the fallback Response that was sent to the traveller.
type JobOutcome struct {
	Response *Response
	Err      error
}

func (o JobOutcome) status() JobStatus {
	if o.Err != nil {
		return JobStatusFailed
	}
	return JobStatusCompleted
}

func (o JobOutcome) errText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

func (o JobOutcome) enquiryID() string {
	if o.Response == nil {
		return ""
	}
	return o.Response.EnquiryID
}

// JobRecorder opens and reads job records.
type JobRecorder interface {
	Open(ctx context.Context, job *JobRecord) error
	Lookup(ctx context.Context, jobID string) (*JobRecord, error)
}

// JobUpdater records the outcome of an attempt.
type JobUpdater interface {
	Finish(ctx context.Context, jobID string, outcome JobOutcome) error
}

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// JobStore keeps job records in a DynamoDB table keyed by jobId, with
// expiresAt as the table's TTL attribute.
type JobStore struct {
	client dynamoAPI
	table  string
	logger *logging.Logger
	now    func() time.Time
}

var (
	_ JobRecorder = (*JobStore)(nil)
	_ JobUpdater  = (*JobStore)(nil)
)

// NewJobStore builds a store on the given table.
func NewJobStore(client dynamoAPI, table string, logger *logging.Logger) *JobStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if table == "" {
		panic("conversation: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobStore{
		client: client,
		table:  table,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *JobStore) Open(ctx context.Context, job *JobRecord) error {
	if job == nil || job.JobID == "" {
		return errors.New("conversation: job id required")
	}
	openJob(job, s.now())

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("conversation: encode job %s: %w", job.JobID, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	var exists *types.ConditionalCheckFailedException
	switch {
	case errors.As(err, &exists):
		return ErrJobExists
	case err != nil:
		return fmt.Errorf("conversation: put job %s: %w", job.JobID, err)
	}
	return nil
}

func (s *JobStore) Finish(ctx context.Context, jobID string, outcome JobOutcome) error {
	if jobID == "" {
		return errors.New("conversation: job id required")
	}
	var respAttr types.AttributeValue = &types.AttributeValueMemberNULL{Value: true}
	if outcome.Response != nil {
		var err error
		if respAttr, err = attributevalue.Marshal(outcome.Response); err != nil {
			return fmt.Errorf("conversation: encode response for job %s: %w", jobID, err)
		}
	}
	finished, err := attributevalue.Marshal(s.now())
	if err != nil {
		return fmt.Errorf("conversation: encode finish time: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key:       jobKey(jobID),
		UpdateExpression: aws.String(
			"SET #status = :status, #response = :response, enquiryId = :enquiry, #error = :error, finishedAt = :finished ADD attempts :one",
		),
		// status, response and error are DynamoDB reserved words.
		ExpressionAttributeNames: map[string]string{
			"#status":   "status",
			"#response": "response",
			"#error":    "error",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: string(outcome.status())},
			":response": respAttr,
			":enquiry":  &types.AttributeValueMemberS{Value: outcome.enquiryID()},
			":error":    &types.AttributeValueMemberS{Value: outcome.errText()},
			":finished": finished,
			":one":      &types.AttributeValueMemberN{Value: "1"},
		},
		ConditionExpression: aws.String("attribute_exists(jobId)"),
	})
	var missing *types.ConditionalCheckFailedException
	switch {
	case errors.As(err, &missing):
		return ErrJobNotFound
	case err != nil:
		return fmt.Errorf("conversation: finish job %s: %w", jobID, err)
	}
	return nil
}

func (s *JobStore) Lookup(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("conversation: job id required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            jobKey(jobID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: get job %s: %w", jobID, err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}

	var job JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("conversation: decode job %s: %w", jobID, err)
	}
	return &job, nil
}

func jobKey(jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: jobID}}
}

func openJob(job *JobRecord, now time.Time) {
	job.Status = JobStatusPending
	job.Attempts = 0
	job.FinishedAt = nil
	if job.QueuedAt.IsZero() {
		job.QueuedAt = now
	}
	if job.Phone == "" && job.Message != nil {
		job.Phone = job.Message.From
	}
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobRetention).Unix()
	}
}

// MemoryJobStore keeps job records in process for local runs and tests.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]JobRecord
	now  func() time.Time
}

var (
	_ JobRecorder = (*MemoryJobStore)(nil)
	_ JobUpdater  = (*MemoryJobStore)(nil)
)

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]JobRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryJobStore) Open(_ context.Context, job *JobRecord) error {
	if job == nil || job.JobID == "" {
		return errors.New("conversation: job id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return ErrJobExists
	}
	openJob(job, s.now())
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemoryJobStore) Finish(_ context.Context, jobID string, outcome JobOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	finished := s.now()
	job.Status = outcome.status()
	job.Response = outcome.Response
	job.EnquiryID = outcome.enquiryID()
	job.Error = outcome.errText()
	job.Attempts++
	job.FinishedAt = &finished
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryJobStore) Lookup(_ context.Context, jobID string) (*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}
