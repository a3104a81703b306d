package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Request headers carrying the signature.
const (
	SignatureHeader = "X-Slack-Signature"
	TimestampHeader = "X-Slack-Request-Timestamp"
)

// MaxRequestAge bounds the replay window.
const MaxRequestAge = 5 * time.Minute

var (
	ErrInvalidSignature = errors.New("invalid slack signature")
	ErrStaleRequest     = errors.New("slack request timestamp outside the replay window")
)

// Sign computes the v0 signature for body at timestamp.
func Sign(secret, timestamp, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":" + body))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a request signature against the signing secret.
func Verify(secret, signature, timestamp, body string, now time.Time) error {
	if secret == "" {
		return fmt.Errorf("%w: no signing secret", ErrInvalidSignature)
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrStaleRequest, timestamp)
	}
	age := now.Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > MaxRequestAge {
		return ErrStaleRequest
	}
	if !hmac.Equal([]byte(signature), []byte(Sign(secret, timestamp, body))) {
		return ErrInvalidSignature
	}
	return nil
}
