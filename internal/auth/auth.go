// Package auth implements message authentication: canonical-form signature
// verification, timestamp freshness, and single-use nonce enforcement. The
// checks run in a fixed order (presence, freshness, nonce, signature) and
// the nonce is consumed before the signature is inspected, so a forged
// envelope still burns its nonce and cannot be retried with a fixed
// signature.
package auth

import (
	"errors"
	"fmt"
	"time"

	"pseudo.chat/vouchd/internal/canon"
	"pseudo.chat/vouchd/internal/config"
	"pseudo.chat/vouchd/internal/envelope"
	"pseudo.chat/vouchd/internal/keys"
	"pseudo.chat/vouchd/internal/logger"
	"pseudo.chat/vouchd/internal/store"
)

// SignedMessage is a chat message envelope as submitted by a client. The
// control fields are optional only while the grace period is active.
type SignedMessage struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
	envelope.Control
}

// SigningPayload returns the canonical bytes the sender must sign: the
// message fields plus timestamp and nonce, never the signature itself.
func (m *SignedMessage) SigningPayload() ([]byte, error) {
	return canon.Canonicalize(map[string]any{
		"from":      m.From,
		"to":        m.To,
		"text":      m.Text,
		"timestamp": m.Timestamp,
		"nonce":     m.Nonce,
	})
}

// Result reports how an accepted message was admitted. Warning and
// GracePeriodEnds are set only for unsigned messages accepted under the
// grace policy.
type Result struct {
	Signed          bool
	Warning         string
	GracePeriodEnds string
}

// Authenticator verifies inbound message envelopes against the identity
// registry and the spent-nonce ledger.
type Authenticator struct {
	store     *store.Store
	gate      envelope.Gate
	grace     bool
	graceEnds string
	log       *logger.Logger
}

// New builds an Authenticator from the loaded configuration.
func New(st *store.Store, cfg *config.Config, log *logger.Logger) *Authenticator {
	return &Authenticator{
		store:     st,
		gate:      envelope.Gate{Window: cfg.FreshnessWindow(), FutureSkew: cfg.FutureSkew()},
		grace:     cfg.GracePeriod,
		graceEnds: cfg.GracePeriodEnds,
		log:       log,
	}
}

// VerifyMessage runs the full authentication pipeline on a message envelope.
// It returns a Result when the message is admitted. Refusals are returned
// as *Rejection; any other error is an internal failure the caller should
// surface as retryable.
func (a *Authenticator) VerifyMessage(msg *SignedMessage, now time.Time) (Result, error) {
	if msg.Signature == "" && msg.Timestamp == "" && msg.Nonce == "" {
		return a.admitUnsigned(msg)
	}

	if msg.Signature == "" || msg.Timestamp == "" || msg.Nonce == "" {
		return Result{}, Reject(ReasonSignatureRequired, "envelope has partial authentication fields")
	}

	ts, err := envelope.ParseTimestamp(msg.Timestamp)
	if err != nil {
		return Result{}, Reject(ReasonTimestampExpired, "unparseable timestamp")
	}
	if !a.gate.Accept(ts, now) {
		a.warnf("message from %s rejected: timestamp outside freshness window", msg.From)
		return Result{}, Reject(ReasonTimestampExpired, "timestamp outside freshness window")
	}

	if err := envelope.ValidateNonce(msg.Nonce); err != nil {
		return Result{}, Reject(ReasonInvalidSignature, fmt.Sprintf("bad nonce: %v", err))
	}

	// Consume the nonce before touching the signature. A replayed envelope
	// is refused here regardless of whether its signature would verify.
	first, err := a.store.RecordNonce(msg.From, msg.Nonce, now)
	if err != nil {
		return Result{}, fmt.Errorf("consume nonce: %w", err)
	}
	if !first {
		a.warnf("message from %s rejected: nonce already spent", msg.From)
		return Result{}, Reject(ReasonReplayAttack, "nonce already used")
	}

	identity, err := a.store.GetIdentity(msg.From)
	if err != nil {
		// Unknown senders get the same refusal as a bad signature so the
		// endpoint cannot be used to probe which handles exist.
		if errors.Is(err, store.ErrIdentityNotFound) {
			return Result{}, Reject(ReasonInvalidSignature, "signature verification failed")
		}
		return Result{}, fmt.Errorf("lookup sender: %w", err)
	}

	payload, err := msg.SigningPayload()
	if err != nil {
		return Result{}, fmt.Errorf("canonicalize message: %w", err)
	}
	if !keys.Verify(payload, msg.Signature, identity.SigningKey) {
		a.warnf("message from %s rejected: signature does not verify against key %s",
			msg.From, keys.Fingerprint(identity.SigningKey))
		return Result{}, Reject(ReasonInvalidSignature, "signature verification failed")
	}

	return Result{Signed: true}, nil
}

func (a *Authenticator) admitUnsigned(msg *SignedMessage) (Result, error) {
	if !a.grace {
		return Result{}, Reject(ReasonSignatureRequired, "unsigned messages are no longer accepted")
	}
	a.warnf("unsigned message from %s accepted under grace period", msg.From)
	return Result{
		Signed:          false,
		Warning:         "unsigned messages will be rejected after the grace period ends",
		GracePeriodEnds: a.graceEnds,
	}, nil
}

func (a *Authenticator) warnf(format string, args ...any) {
	if a.log != nil {
		a.log.Warning(fmt.Sprintf(format, args...))
	}
}
