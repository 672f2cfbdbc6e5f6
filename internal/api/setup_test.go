package api

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"pseudo.chat/vouchd/internal/auth"
	"pseudo.chat/vouchd/internal/config"
	"pseudo.chat/vouchd/internal/envelope"
	"pseudo.chat/vouchd/internal/keys"
	"pseudo.chat/vouchd/internal/logger"
	"pseudo.chat/vouchd/internal/rotation"
	"pseudo.chat/vouchd/internal/store"
	"pseudo.chat/vouchd/internal/types"
)

// setupTest creates a temporary store and service for testing
func setupTest(t *testing.T, grace bool) (*Service, *store.Store) {
	t.Helper()

	st, err := store.NewStore(filepath.Join(t.TempDir(), "api-test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg, _ := config.LoadConfig("")
	cfg.GracePeriod = grace
	cfg.GracePeriodEnds = "2026-09-01T00:00:00Z"

	l := logger.New(100)
	svc := NewService(st, auth.New(st, cfg, l), rotation.New(st, cfg, l), l)
	return svc, st
}

type testIdentity struct {
	handle       string
	signingKey   string
	signingPriv  ed25519.PrivateKey
	recoveryKey  string
	recoveryPriv ed25519.PrivateKey
}

func registerIdentity(t *testing.T, st *store.Store, handle string, withRecovery bool) *testIdentity {
	t.Helper()

	signingKey, signingPriv, err := keys.GenerateKeypair()
	if err != nil {
		t.Fatalf("Failed to generate signing keypair: %v", err)
	}

	id := &testIdentity{handle: handle, signingKey: signingKey, signingPriv: signingPriv}
	if withRecovery {
		id.recoveryKey, id.recoveryPriv, err = keys.GenerateKeypair()
		if err != nil {
			t.Fatalf("Failed to generate recovery keypair: %v", err)
		}
	}

	if err := st.RegisterIdentity(types.Identity{
		Handle:      handle,
		SigningKey:  signingKey,
		RecoveryKey: id.recoveryKey,
	}); err != nil {
		t.Fatalf("Failed to register identity: %v", err)
	}
	return id
}

func testNonce(t *testing.T) string {
	t.Helper()
	buf := make([]byte, envelope.MinNonceBytes)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("Failed to read random bytes: %v", err)
	}
	return hex.EncodeToString(buf)
}

func (id *testIdentity) signedMessage(t *testing.T, to, text string) *auth.SignedMessage {
	t.Helper()
	msg := &auth.SignedMessage{
		From: id.handle,
		To:   to,
		Text: text,
		Control: envelope.Control{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Nonce:     testNonce(t),
		},
	}
	payload, err := msg.SigningPayload()
	if err != nil {
		t.Fatalf("Failed to canonicalize message: %v", err)
	}
	msg.Signature = keys.SignB64(id.signingPriv, payload)
	return msg
}

func (id *testIdentity) rotationProof(t *testing.T, newKey string) *rotation.Proof {
	t.Helper()
	p := &rotation.Proof{
		Operation: rotation.OperationRotate,
		Handle:    id.handle,
		OldKey:    id.signingKey,
		NewKey:    newKey,
		Control: envelope.Control{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Nonce:     testNonce(t),
		},
	}
	payload, err := p.SigningPayload()
	if err != nil {
		t.Fatalf("Failed to canonicalize proof: %v", err)
	}
	if len(id.recoveryPriv) > 0 {
		p.Signature = keys.SignB64(id.recoveryPriv, payload)
	}
	return p
}
