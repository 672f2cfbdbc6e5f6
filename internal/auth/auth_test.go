package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"pseudo.chat/vouchd/internal/config"
	"pseudo.chat/vouchd/internal/envelope"
	"pseudo.chat/vouchd/internal/keys"
	"pseudo.chat/vouchd/internal/logger"
	"pseudo.chat/vouchd/internal/store"
	"pseudo.chat/vouchd/internal/types"
)

func setupTest(t *testing.T, grace bool) (*Authenticator, *store.Store) {
	t.Helper()

	st, err := store.NewStore(filepath.Join(t.TempDir(), "auth-test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg, _ := config.LoadConfig("")
	cfg.GracePeriod = grace
	cfg.GracePeriodEnds = "2026-09-01T00:00:00Z"

	return New(st, cfg, logger.New(50)), st
}

func registerSender(t *testing.T, st *store.Store, handle string) ed25519.PrivateKey {
	t.Helper()
	pub, priv, err := keys.GenerateKeypair()
	if err != nil {
		t.Fatalf("Failed to generate keypair: %v", err)
	}
	if err := st.RegisterIdentity(types.Identity{Handle: handle, SigningKey: pub}); err != nil {
		t.Fatalf("Failed to register identity: %v", err)
	}
	return priv
}

func freshNonce(t *testing.T) string {
	t.Helper()
	buf := make([]byte, envelope.MinNonceBytes)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("Failed to read random bytes: %v", err)
	}
	return hex.EncodeToString(buf)
}

func signedMessage(t *testing.T, priv ed25519.PrivateKey, from, to, text string, ts time.Time) *SignedMessage {
	t.Helper()
	msg := &SignedMessage{
		From: from,
		To:   to,
		Text: text,
		Control: envelope.Control{
			Timestamp: ts.UTC().Format(time.RFC3339),
			Nonce:     freshNonce(t),
		},
	}
	payload, err := msg.SigningPayload()
	if err != nil {
		t.Fatalf("Failed to canonicalize: %v", err)
	}
	msg.Signature = keys.SignB64(priv, payload)
	return msg
}

func expectReason(t *testing.T, err error, want Reason) *Rejection {
	t.Helper()
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("Expected rejection %s, got %v", want, err)
	}
	if rej.Reason != want {
		t.Fatalf("Expected reason %s, got %s", want, rej.Reason)
	}
	return rej
}

func TestVerifyValidMessage(t *testing.T) {
	a, st := setupTest(t, false)
	priv := registerSender(t, st, "ada")

	now := time.Now()
	msg := signedMessage(t, priv, "ada", "bob", "hello", now)

	result, err := a.VerifyMessage(msg, now)
	if err != nil {
		t.Fatalf("VerifyMessage: %v", err)
	}
	if !result.Signed {
		t.Error("Expected signed result")
	}
	if result.Warning != "" {
		t.Errorf("Unexpected warning: %q", result.Warning)
	}
}

func TestUnsignedRejectedInStrictMode(t *testing.T) {
	a, _ := setupTest(t, false)

	_, err := a.VerifyMessage(&SignedMessage{From: "ada", To: "bob", Text: "hi"}, time.Now())
	expectReason(t, err, ReasonSignatureRequired)
}

func TestUnsignedAcceptedDuringGracePeriod(t *testing.T) {
	a, _ := setupTest(t, true)

	result, err := a.VerifyMessage(&SignedMessage{From: "ada", To: "bob", Text: "hi"}, time.Now())
	if err != nil {
		t.Fatalf("VerifyMessage: %v", err)
	}
	if result.Signed {
		t.Error("Unsigned message must not be reported as signed")
	}
	if result.Warning == "" {
		t.Error("Expected a deprecation warning")
	}
	if result.GracePeriodEnds != "2026-09-01T00:00:00Z" {
		t.Errorf("Unexpected grace period end: %q", result.GracePeriodEnds)
	}
}

func TestPartialEnvelopeRejected(t *testing.T) {
	a, st := setupTest(t, true)
	priv := registerSender(t, st, "ada")

	now := time.Now()
	msg := signedMessage(t, priv, "ada", "bob", "hi", now)
	msg.Nonce = ""

	// Even with grace active, an envelope that attempts authentication and
	// omits a control field is not treated as unsigned.
	_, err := a.VerifyMessage(msg, now)
	expectReason(t, err, ReasonSignatureRequired)
}

func TestReplayRejected(t *testing.T) {
	a, st := setupTest(t, false)
	priv := registerSender(t, st, "ada")

	now := time.Now()
	msg := signedMessage(t, priv, "ada", "bob", "hello", now)

	if _, err := a.VerifyMessage(msg, now); err != nil {
		t.Fatalf("First delivery: %v", err)
	}
	_, err := a.VerifyMessage(msg, now.Add(time.Second))
	expectReason(t, err, ReasonReplayAttack)
}

func TestStaleTimestampRejectedBeforeSignatureCheck(t *testing.T) {
	a, st := setupTest(t, false)
	priv := registerSender(t, st, "ada")

	now := time.Now()
	msg := signedMessage(t, priv, "ada", "bob", "hello", now.Add(-10*time.Minute))

	// The signature is valid; staleness alone must reject it.
	_, err := a.VerifyMessage(msg, now)
	expectReason(t, err, ReasonTimestampExpired)
}

func TestFutureTimestampRejected(t *testing.T) {
	a, st := setupTest(t, false)
	priv := registerSender(t, st, "ada")

	now := time.Now()
	msg := signedMessage(t, priv, "ada", "bob", "hello", now.Add(10*time.Minute))

	_, err := a.VerifyMessage(msg, now)
	expectReason(t, err, ReasonTimestampExpired)
}

func TestForgedSignatureRejected(t *testing.T) {
	a, st := setupTest(t, false)
	registerSender(t, st, "ada")

	_, wrongPriv, err := keys.GenerateKeypair()
	if err != nil {
		t.Fatalf("Failed to generate keypair: %v", err)
	}

	now := time.Now()
	msg := signedMessage(t, wrongPriv, "ada", "bob", "hello", now)

	_, verr := a.VerifyMessage(msg, now)
	expectReason(t, verr, ReasonInvalidSignature)
}

func TestForgeryConsumesNonce(t *testing.T) {
	a, st := setupTest(t, false)
	priv := registerSender(t, st, "ada")

	_, wrongPriv, err := keys.GenerateKeypair()
	if err != nil {
		t.Fatalf("Failed to generate keypair: %v", err)
	}

	now := time.Now()
	forged := signedMessage(t, wrongPriv, "ada", "bob", "hello", now)
	_, verr := a.VerifyMessage(forged, now)
	expectReason(t, verr, ReasonInvalidSignature)

	// Re-signing the same envelope with the real key must still fail: the
	// forged attempt burned the nonce.
	payload, _ := forged.SigningPayload()
	forged.Signature = keys.SignB64(priv, payload)

	_, verr = a.VerifyMessage(forged, now)
	expectReason(t, verr, ReasonReplayAttack)
}

func TestUnknownSenderFailsClosed(t *testing.T) {
	a, _ := setupTest(t, false)

	_, priv, err := keys.GenerateKeypair()
	if err != nil {
		t.Fatalf("Failed to generate keypair: %v", err)
	}

	now := time.Now()
	msg := signedMessage(t, priv, "ghost", "bob", "hello", now)

	// An unregistered handle gets the same refusal as a bad signature.
	_, verr := a.VerifyMessage(msg, now)
	expectReason(t, verr, ReasonInvalidSignature)
}

func TestTamperedBodyRejected(t *testing.T) {
	a, st := setupTest(t, false)
	priv := registerSender(t, st, "ada")

	now := time.Now()
	msg := signedMessage(t, priv, "ada", "bob", "hello", now)
	msg.Text = "hello!"

	_, err := a.VerifyMessage(msg, now)
	expectReason(t, err, ReasonInvalidSignature)
}

func TestShortNonceRejected(t *testing.T) {
	a, st := setupTest(t, false)
	priv := registerSender(t, st, "ada")

	now := time.Now()
	msg := &SignedMessage{
		From: "ada",
		To:   "bob",
		Text: "hi",
		Control: envelope.Control{
			Timestamp: now.UTC().Format(time.RFC3339),
			Nonce:     "abcd",
		},
	}
	payload, _ := msg.SigningPayload()
	msg.Signature = keys.SignB64(priv, payload)

	_, err := a.VerifyMessage(msg, now)
	expectReason(t, err, ReasonInvalidSignature)
}

func TestRejectionStatusCodes(t *testing.T) {
	cases := []struct {
		reason Reason
		status int
	}{
		{ReasonSignatureRequired, 401},
		{ReasonTimestampExpired, 401},
		{ReasonReplayAttack, 401},
		{ReasonInvalidSignature, 401},
		{ReasonInvalidProof, 401},
		{ReasonNoRecoveryKey, 400},
		{ReasonRateLimited, 429},
	}
	for _, tc := range cases {
		if got := Reject(tc.reason, "").Status(); got != tc.status {
			t.Errorf("%s: expected status %d, got %d", tc.reason, tc.status, got)
		}
	}
}
