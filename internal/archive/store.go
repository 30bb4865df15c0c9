// Package archive writes handed-off enquiries and their transcripts to S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store archives handoff records. With no bucket every call is a no-op.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore creates an archive Store.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		bucket:   bucket,
		s3Client: s3Client,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether a bucket and client are configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveHandoff writes the enquiry and its scrubbed transcript to
// enquiries/v1/by-date/YYYY/MM/DD/<id>.json and appends the monthly manifest.
func (s *Store) ArchiveHandoff(ctx context.Context, e *enquiry.Enquiry, reason string, transcript []Message) error {
	if !s.Enabled() {
		return nil
	}
	if e == nil {
		return errors.New("archive: enquiry cannot be nil")
	}

	now := s.now()
	lines := append([]Message(nil), transcript...)
	ScrubMessages(lines)
	record := HandoffRecord{
		Version:    recordVersion,
		EnquiryID:  e.ID,
		PhoneHash:  HashPhone(e.PhoneNumber),
		Reason:     reason,
		ArchivedAt: now,
		Enquiry:    e,
		Transcript: lines,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	key := fmt.Sprintf("enquiries/v1/by-date/%d/%02d/%02d/%s.json", now.Year(), now.Month(), now.Day(), e.ID)
	if _, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	s.logger.Info("archived enquiry handoff", "enquiry_id", e.ID, "s3_key", key, "reason", reason)

	entry := ManifestEntry{
		EnquiryID:  e.ID,
		S3Key:      key,
		PhoneHash:  record.PhoneHash,
		Reason:     reason,
		Tags:       e.Tags,
		ArchivedAt: now.Format(time.RFC3339),
		TurnCount:  len(lines),
	}
	if e.Destination != nil {
		entry.Destination = *e.Destination
	}
	if err := s.AppendManifest(ctx, entry); err != nil {
		// The record itself is already stored.
		s.logger.Warn("failed to append manifest", "error", err, "enquiry_id", e.ID)
	}
	return nil
}

// manifestAttempts bounds retries when another writer changed the manifest
// between our read and our write.
const manifestAttempts = 4

var errManifestConflict = errors.New("archive: manifest changed concurrently")

// AppendManifest adds one JSONL line to the monthly manifest. S3 has no
// append, so the object is read and rewritten with a conditional put: If-Match
// on the ETag we read, or If-None-Match when creating it. A losing writer
// re-reads and tries again.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}
	now := s.now()
	key := fmt.Sprintf("enquiries/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	for attempt := 1; attempt <= manifestAttempts; attempt++ {
		err = s.appendOnce(ctx, key, line)
		if !errors.Is(err, errManifestConflict) {
			return err
		}
		s.logger.Debug("manifest write raced, retrying", "key", key, "attempt", attempt)
	}
	return fmt.Errorf("archive: manifest %s: %w after %d attempts", key, errManifestConflict, manifestAttempts)
}

func (s *Store) appendOnce(ctx context.Context, key string, line []byte) error {
	existing, etag, err := s.readManifest(ctx, key)
	if err != nil {
		return err
	}

	body := make([]byte, 0, len(existing)+len(line)+2)
	body = append(body, existing...)
	if len(body) > 0 && body[len(body)-1] != '\n' {
		body = append(body, '\n')
	}
	body = append(append(body, line...), '\n')

	put := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	}
	if etag == "" {
		put.IfNoneMatch = aws.String("*")
	} else {
		put.IfMatch = aws.String(etag)
	}
	if _, err := s.s3Client.PutObject(ctx, put); err != nil {
		if isWriteConflict(err) {
			return errManifestConflict
		}
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

// readManifest returns the manifest body and ETag, or neither when the month
// has no manifest yet.
func (s *Store) readManifest(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("archive: s3 get manifest: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("archive: read manifest: %w", err)
	}
	return data, aws.ToString(out.ETag), nil
}

func isWriteConflict(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound")
}
