package api

import (
	"net/http"
	"testing"
	"time"

	"pseudo.chat/vouchd/internal/auth"
	"pseudo.chat/vouchd/internal/envelope"
	"pseudo.chat/vouchd/internal/keys"
)

func TestSubmitSignedMessage(t *testing.T) {
	svc, st := setupTest(t, false)
	id := registerIdentity(t, st, "ada", false)

	w := postJSON(t, svc.HandleSubmitMessage, "/api/messages", id.signedMessage(t, "bob", "hello"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["status"] != "accepted" {
		t.Errorf("Expected status accepted, got %v", body["status"])
	}
	msgID, _ := body["id"].(string)
	if msgID == "" {
		t.Fatal("Expected a message id")
	}

	stored, err := st.GetMessage(msgID)
	if err != nil {
		t.Fatalf("Stored message missing: %v", err)
	}
	if !stored.Signed {
		t.Error("Message should be recorded as signed")
	}
}

func TestSubmitUnsignedMessageStrict(t *testing.T) {
	svc, st := setupTest(t, false)
	registerIdentity(t, st, "ada", false)

	w := postJSON(t, svc.HandleSubmitMessage, "/api/messages", map[string]string{
		"from": "ada", "to": "bob", "text": "hi",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "signature_required" {
		t.Errorf("Expected error code signature_required, got %v", body["error"])
	}
}

func TestSubmitUnsignedMessageGrace(t *testing.T) {
	svc, st := setupTest(t, true)
	registerIdentity(t, st, "ada", false)

	w := postJSON(t, svc.HandleSubmitMessage, "/api/messages", map[string]string{
		"from": "ada", "to": "bob", "text": "hi",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["warning"] == nil {
		t.Error("Expected a warning for unsigned grace traffic")
	}
	if body["grace_period_ends"] != "2026-09-01T00:00:00Z" {
		t.Errorf("Unexpected grace period end: %v", body["grace_period_ends"])
	}
}

func TestSubmitReplayedMessage(t *testing.T) {
	svc, st := setupTest(t, false)
	id := registerIdentity(t, st, "ada", false)

	msg := id.signedMessage(t, "bob", "hello")
	if w := postJSON(t, svc.HandleSubmitMessage, "/api/messages", msg); w.Code != http.StatusOK {
		t.Fatalf("First delivery: got %d", w.Code)
	}

	w := postJSON(t, svc.HandleSubmitMessage, "/api/messages", msg)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "replay_attack" {
		t.Errorf("Expected error code replay_attack, got %v", body["error"])
	}
}

func TestSubmitForgedMessage(t *testing.T) {
	svc, st := setupTest(t, false)
	registerIdentity(t, st, "ada", false)

	_, wrongPriv, _ := keys.GenerateKeypair()
	msg := &auth.SignedMessage{
		From: "ada",
		To:   "bob",
		Text: "hello",
		Control: envelope.Control{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Nonce:     testNonce(t),
		},
	}
	payload, _ := msg.SigningPayload()
	msg.Signature = keys.SignB64(wrongPriv, payload)

	w := postJSON(t, svc.HandleSubmitMessage, "/api/messages", msg)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "invalid_signature" {
		t.Errorf("Expected error code invalid_signature, got %v", body["error"])
	}
}

func TestSubmitStaleMessage(t *testing.T) {
	svc, st := setupTest(t, false)
	id := registerIdentity(t, st, "ada", false)

	msg := &auth.SignedMessage{
		From: "ada",
		To:   "bob",
		Text: "hello",
		Control: envelope.Control{
			Timestamp: time.Now().Add(-20 * time.Minute).UTC().Format(time.RFC3339),
			Nonce:     testNonce(t),
		},
	}
	payload, _ := msg.SigningPayload()
	msg.Signature = keys.SignB64(id.signingPriv, payload)

	w := postJSON(t, svc.HandleSubmitMessage, "/api/messages", msg)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "timestamp_expired" {
		t.Errorf("Expected error code timestamp_expired, got %v", body["error"])
	}
}

func TestSubmitMessageMissingFields(t *testing.T) {
	svc, _ := setupTest(t, true)

	w := postJSON(t, svc.HandleSubmitMessage, "/api/messages", map[string]string{"from": "ada"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}
