package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signatureHeader = "X-Hub-Signature-256"

// ValidateSignature checks a Meta "sha256=<hex>" signature over the raw body.
func ValidateSignature(body []byte, header, appSecret string) bool {
	header = strings.TrimSpace(header)
	if header == "" || appSecret == "" {
		return false
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(got, computeSignature(body, appSecret))
}

// SignBody returns the header value Meta would send for body.
func SignBody(body []byte, appSecret string) string {
	return "sha256=" + hex.EncodeToString(computeSignature(body, appSecret))
}

func computeSignature(body []byte, key string) []byte {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(body)
	return h.Sum(nil)
}
