// Package rotation implements the signing-key rotation state machine. A
// rotation is authorized by the identity's recovery key, never its current
// signing key, so a stolen signing key cannot rotate itself into permanence.
// The engine runs cheap refusals first (registration, recovery key, replay,
// cooldown) and only then spends the nonce and verifies the proof; the
// final apply is a single conditional transaction in the store, which is
// the authoritative guard against concurrent double-rotation.
package rotation

import (
	"errors"
	"fmt"
	"time"

	"pseudo.chat/vouchd/internal/auth"
	"pseudo.chat/vouchd/internal/canon"
	"pseudo.chat/vouchd/internal/config"
	"pseudo.chat/vouchd/internal/envelope"
	"pseudo.chat/vouchd/internal/keys"
	"pseudo.chat/vouchd/internal/logger"
	"pseudo.chat/vouchd/internal/store"
	"pseudo.chat/vouchd/internal/types"
)

// OperationRotate is the operation tag a rotation proof must carry.
const OperationRotate = "rotate"

// Proof is a signed rotation request. The signature covers the canonical
// form of all other fields and must verify against the identity's recovery
// key.
type Proof struct {
	Operation string `json:"operation"`
	Handle    string `json:"handle"`
	OldKey    string `json:"old_key"`
	NewKey    string `json:"new_key"`
	envelope.Control
}

// SigningPayload returns the canonical bytes the recovery key must have
// signed.
func (p *Proof) SigningPayload() ([]byte, error) {
	return canon.Canonicalize(map[string]any{
		"operation": p.Operation,
		"handle":    p.Handle,
		"old_key":   p.OldKey,
		"new_key":   p.NewKey,
		"timestamp": p.Timestamp,
		"nonce":     p.Nonce,
	})
}

// Engine validates and applies rotation proofs.
type Engine struct {
	store    *store.Store
	gate     envelope.Gate
	cooldown time.Duration
	log      *logger.Logger
}

// New builds a rotation Engine from the loaded configuration.
func New(st *store.Store, cfg *config.Config, log *logger.Logger) *Engine {
	return &Engine{
		store:    st,
		gate:     envelope.Gate{Window: cfg.FreshnessWindow(), FutureSkew: cfg.FutureSkew()},
		cooldown: cfg.RotationCooldown(),
		log:      log,
	}
}

// Rotate runs a proof through the full rotation pipeline and, if every
// check passes, swaps the identity's signing key. Refusals come back as
// *auth.Rejection; store.ErrIdentityNotFound passes through for the caller
// to map to a 404. Rejected proofs never advance the cooldown marker.
func (e *Engine) Rotate(proof *Proof, now time.Time) (*types.RotationEvent, error) {
	identity, err := e.store.GetIdentity(proof.Handle)
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	if identity.RecoveryKey == "" {
		return nil, auth.Reject(auth.ReasonNoRecoveryKey, "identity registered without a recovery key")
	}

	// A resubmitted proof is a replay no matter what else is wrong with it,
	// including a cooldown opened by its own first application. This is a
	// read; the atomic consume below remains the authoritative gate.
	seen, err := e.store.NonceSeen(proof.Handle, proof.Nonce)
	if err != nil {
		return nil, fmt.Errorf("check nonce: %w", err)
	}
	if seen {
		e.warnf("rotation for %s refused: proof nonce already spent", proof.Handle)
		return nil, auth.Reject(auth.ReasonReplayAttack, "nonce already used")
	}

	// Side-effect-free pre-check so a proof inside the window is refused
	// before its nonce is spent.
	remaining, err := e.store.CooldownRemaining(proof.Handle, now, e.cooldown)
	if err != nil {
		return nil, fmt.Errorf("check cooldown: %w", err)
	}
	if remaining > 0 {
		e.warnf("rotation for %s refused: cooldown active for %s", proof.Handle, remaining.Round(time.Second))
		return nil, &auth.Rejection{
			Reason:     auth.ReasonRateLimited,
			Detail:     "rotation cooldown active",
			RetryAfter: remaining,
		}
	}

	if proof.Operation != OperationRotate {
		return nil, auth.Reject(auth.ReasonInvalidProof, fmt.Sprintf("unexpected operation %q", proof.Operation))
	}
	if proof.OldKey != identity.SigningKey {
		e.warnf("rotation for %s refused: proof names a retired signing key", proof.Handle)
		return nil, auth.Reject(auth.ReasonInvalidProof, "old key does not match the active signing key")
	}
	if _, err := keys.ParsePublicKey(proof.NewKey); err != nil {
		return nil, auth.Reject(auth.ReasonInvalidProof, fmt.Sprintf("bad new key: %v", err))
	}

	ts, err := envelope.ParseTimestamp(proof.Timestamp)
	if err != nil {
		return nil, auth.Reject(auth.ReasonTimestampExpired, "unparseable timestamp")
	}
	if !e.gate.Accept(ts, now) {
		return nil, auth.Reject(auth.ReasonTimestampExpired, "timestamp outside freshness window")
	}

	if err := envelope.ValidateNonce(proof.Nonce); err != nil {
		return nil, auth.Reject(auth.ReasonInvalidProof, fmt.Sprintf("bad nonce: %v", err))
	}

	first, err := e.store.RecordNonce(proof.Handle, proof.Nonce, now)
	if err != nil {
		return nil, fmt.Errorf("consume nonce: %w", err)
	}
	if !first {
		e.warnf("rotation for %s refused: proof nonce already spent", proof.Handle)
		return nil, auth.Reject(auth.ReasonReplayAttack, "nonce already used")
	}

	payload, err := proof.SigningPayload()
	if err != nil {
		return nil, fmt.Errorf("canonicalize proof: %w", err)
	}
	if !keys.Verify(payload, proof.Signature, identity.RecoveryKey) {
		e.warnf("rotation for %s refused: proof does not verify against recovery key %s",
			proof.Handle, keys.Fingerprint(identity.RecoveryKey))
		return nil, auth.Reject(auth.ReasonInvalidProof, "proof signature verification failed")
	}

	event, err := e.store.ApplyRotation(proof.Handle, proof.OldKey, proof.NewKey, now, e.cooldown)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrCooldownActive):
			return nil, &auth.Rejection{
				Reason:     auth.ReasonRateLimited,
				Detail:     "rotation cooldown active",
				RetryAfter: e.cooldown,
			}
		case errors.Is(err, store.ErrStaleKey):
			return nil, auth.Reject(auth.ReasonInvalidProof, "old key does not match the active signing key")
		}
		return nil, fmt.Errorf("apply rotation: %w", err)
	}

	e.infof("rotated signing key for %s: %s -> %s",
		proof.Handle, keys.Fingerprint(proof.OldKey), keys.Fingerprint(proof.NewKey))
	return event, nil
}

// History returns an identity's rotation events, oldest first.
func (e *Engine) History(handle string) ([]types.RotationEvent, error) {
	if _, err := e.store.GetIdentity(handle); err != nil {
		return nil, err
	}
	return e.store.ListRotations(handle)
}

func (e *Engine) infof(format string, args ...any) {
	if e.log != nil {
		e.log.Info(fmt.Sprintf(format, args...))
	}
}

func (e *Engine) warnf(format string, args ...any) {
	if e.log != nil {
		e.log.Warning(fmt.Sprintf(format, args...))
	}
}
