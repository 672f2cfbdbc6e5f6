package auth

import (
	"net/http"
	"time"
)

// Reason is the closed set of rejection codes the protocol emits. Clients
// branch on these strings, so new causes must map onto an existing code or
// extend this list deliberately.
type Reason string

const (
	ReasonSignatureRequired Reason = "signature_required"
	ReasonTimestampExpired  Reason = "timestamp_expired"
	ReasonReplayAttack      Reason = "replay_attack"
	ReasonInvalidSignature  Reason = "invalid_signature"
	ReasonNoRecoveryKey     Reason = "no_recovery_key"
	ReasonInvalidProof      Reason = "invalid_proof"
	ReasonRateLimited       Reason = "rate_limited"
)

// Rejection is a protocol-level refusal. It is an error so it can travel
// through normal error returns, but handlers should unwrap it to emit the
// reason code and status rather than a generic failure.
type Rejection struct {
	Reason Reason
	Detail string
	// RetryAfter is set for rate_limited rejections so the client knows
	// when the next attempt can succeed.
	RetryAfter time.Duration
}

func (r *Rejection) Error() string {
	if r.Detail != "" {
		return string(r.Reason) + ": " + r.Detail
	}
	return string(r.Reason)
}

// Status maps the rejection to its HTTP status code.
func (r *Rejection) Status() int {
	switch r.Reason {
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	case ReasonNoRecoveryKey:
		return http.StatusBadRequest
	default:
		return http.StatusUnauthorized
	}
}

// Reject builds a Rejection with a detail string.
func Reject(reason Reason, detail string) *Rejection {
	return &Rejection{Reason: reason, Detail: detail}
}
