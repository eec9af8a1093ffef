package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureVersion prefixes every signature header value.
const SignatureVersion = "v1="

// Delivery headers.
const (
	HeaderEventID   = "X-Morphy-Event-Id"
	HeaderEventType = "X-Morphy-Event-Type"
	HeaderTimestamp = "X-Morphy-Timestamp"
	HeaderSignature = "X-Morphy-Signature"
)

var (
	ErrSignatureMissing = errors.New("webhook signature missing")
	ErrInvalidSignature = errors.New("webhook signature invalid")
)

// Sign returns "v1=" followed by the hex HMAC-SHA256 of body keyed with secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignatureVersion + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature header in constant time.
func VerifySignature(secret string, body []byte, header string) error {
	if header == "" {
		return ErrSignatureMissing
	}
	if !strings.HasPrefix(header, SignatureVersion) {
		return ErrInvalidSignature
	}

	got, err := hex.DecodeString(strings.TrimPrefix(header, SignatureVersion))
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}
