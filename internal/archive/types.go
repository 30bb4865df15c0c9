package archive

import (
	"time"

	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
)

const recordVersion = "1.0"

// HandoffRecord is the document archived when a lead is handed to sales.
type HandoffRecord struct {
	Version    string           `json:"version"`
	EnquiryID  string           `json:"enquiry_id"`
	PhoneHash  string           `json:"phone_hash"`
	Reason     string           `json:"reason"`
	ArchivedAt time.Time        `json:"archived_at"`
	Enquiry    *enquiry.Enquiry `json:"enquiry"`
	Transcript []Message        `json:"transcript"`
}

// Message is a single conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	EnquiryID   string   `json:"enquiry_id"`
	S3Key       string   `json:"s3_key"`
	PhoneHash   string   `json:"phone_hash"`
	Reason      string   `json:"reason"`
	Destination string   `json:"destination,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ArchivedAt  string   `json:"archived_at"`
	TurnCount   int      `json:"turn_count"`
}
