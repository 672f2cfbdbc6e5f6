// Package envelope defines the signed-envelope control fields shared by
// messages and rotation proofs, the timestamp freshness gate, and nonce
// format validation. The signature always covers the canonical form of the
// payload plus timestamp and nonce, never the signature field itself.
package envelope

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// MinNonceBytes is the minimum decoded nonce entropy.
const MinNonceBytes = 16

// Control carries the three authentication fields attached to every signed
// envelope.
type Control struct {
	Timestamp string `json:"timestamp"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

// ParseTimestamp parses an envelope issuance timestamp. RFC3339 with or
// without sub-second precision is accepted.
func ParseTimestamp(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return ts, nil
}

// Gate decides whether a claimed issuance timestamp is fresh relative to
// server time. Window bounds how old an envelope may be; FutureSkew bounds
// how far ahead a client clock may run. Forward-dated envelopes are
// rejected so a pre-signed proof cannot be queued for later replay.
type Gate struct {
	Window     time.Duration
	FutureSkew time.Duration
}

// Accept reports whether ts falls inside [now-Window, now+FutureSkew].
func (g Gate) Accept(ts, now time.Time) bool {
	if ts.Before(now.Add(-g.Window)) {
		return false
	}
	if ts.After(now.Add(g.FutureSkew)) {
		return false
	}
	return true
}

// ValidateNonce checks that a nonce token is hex or base64 and decodes to
// at least MinNonceBytes of entropy. The decoded bytes are not kept; the
// ledger stores the token as presented.
func ValidateNonce(nonce string) error {
	if nonce == "" {
		return fmt.Errorf("nonce is empty")
	}

	if raw, err := hex.DecodeString(nonce); err == nil {
		if len(raw) < MinNonceBytes {
			return fmt.Errorf("nonce is %d bytes, want at least %d", len(raw), MinNonceBytes)
		}
		return nil
	}

	if raw, err := base64.StdEncoding.DecodeString(nonce); err == nil {
		if len(raw) < MinNonceBytes {
			return fmt.Errorf("nonce is %d bytes, want at least %d", len(raw), MinNonceBytes)
		}
		return nil
	}

	return fmt.Errorf("nonce is neither hex nor base64")
}
