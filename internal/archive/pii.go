package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// Travellers paste identity and payment documents into chat while sharing
// booking details. Archived transcripts keep names, phones and emails
// because the sales desk works from them; document numbers are masked.
// Order matters: card numbers are masked before the shorter Aadhaar pattern
// can match inside them.
var redactions = []struct {
	pattern *regexp.Regexp
	mask    string
}{
	{regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{1,7}\b`), "[CARD]"},
	{regexp.MustCompile(`\b[2-9]\d{3}[ -]\d{4}[ -]\d{4}\b`), "[AADHAAR]"},
	{regexp.MustCompile(`\b[A-Z]{5}[0-9]{4}[A-Z]\b`), "[PAN]"},
	{regexp.MustCompile(`\b[A-Za-z][0-9]{7}\b`), "[PASSPORT]"},
}

// HashPhone returns the hex SHA-256 of phone, used to key archive records
// without storing the number in object keys.
func HashPhone(phone string) string {
	sum := sha256.Sum256([]byte(phone))
	return hex.EncodeToString(sum[:])
}

// ScrubPII masks card, Aadhaar, PAN and passport numbers in text.
func ScrubPII(text string) string {
	for _, r := range redactions {
		text = r.pattern.ReplaceAllString(text, r.mask)
	}
	return text
}

// ScrubMessages applies ScrubPII to every transcript line in place.
func ScrubMessages(msgs []Message) {
	for i := range msgs {
		msgs[i].Content = ScrubPII(msgs[i].Content)
	}
}
