package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pseudo.chat/vouchd/internal/keys"
	"pseudo.chat/vouchd/internal/rotation"
	"pseudo.chat/vouchd/internal/store"
	"pseudo.chat/vouchd/internal/types"
)

const maxHandleLength = 64

// identityView is the public shape of an identity. The recovery key is
// write-only: it is accepted at registration and never echoed back.
type identityView struct {
	Handle     string    `json:"handle"`
	SigningKey string    `json:"signing_key"`
	Rotations  int       `json:"rotations"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func viewOf(id *types.Identity) identityView {
	return identityView{
		Handle:     id.Handle,
		SigningKey: id.SigningKey,
		Rotations:  id.Rotations,
		CreatedAt:  id.CreatedAt,
		UpdatedAt:  id.UpdatedAt,
	}
}

func validHandle(handle string) error {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return fmt.Errorf("handle is required")
	}
	if len(handle) > maxHandleLength {
		return fmt.Errorf("handle exceeds %d characters", maxHandleLength)
	}
	for _, r := range handle {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '.':
		default:
			return fmt.Errorf("handle contains invalid character %q", r)
		}
	}
	return nil
}

// @Title: Register Identity
// @Route: POST /api/identities
// @Description: Claim a handle with a signing key and optional recovery key
// @Response: 201 with the public identity, 409 if the handle is taken
func (s *Service) HandleRegisterIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Handle      string `json:"handle"`
		SigningKey  string `json:"signing_key"`
		RecoveryKey string `json:"recovery_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validHandle(req.Handle); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := keys.ParsePublicKey(req.SigningKey); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("bad signing key: %v", err))
		return
	}
	if req.RecoveryKey != "" {
		if _, err := keys.ParsePublicKey(req.RecoveryKey); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("bad recovery key: %v", err))
			return
		}
		if req.RecoveryKey == req.SigningKey {
			s.writeError(w, http.StatusBadRequest, "recovery key must differ from the signing key")
			return
		}
	}

	identity := types.Identity{
		Handle:      strings.TrimSpace(req.Handle),
		SigningKey:  req.SigningKey,
		RecoveryKey: req.RecoveryKey,
	}
	if err := s.store.RegisterIdentity(identity); err != nil {
		if errors.Is(err, store.ErrHandleTaken) {
			s.writeError(w, http.StatusConflict, "handle already registered")
			return
		}
		s.writeFailure(w, err)
		return
	}

	stored, err := s.store.GetIdentity(identity.Handle)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	s.logger.Info(fmt.Sprintf("Registered identity %s with key %s",
		stored.Handle, keys.Fingerprint(stored.SigningKey)))
	s.writeJSON(w, http.StatusCreated, viewOf(stored))
}

// HandleIdentity dispatches /api/identities/{handle}[/history|/rotate]
// requests. Routes are registered on a flat ServeMux, so path parameters
// are peeled off here.
func (s *Service) HandleIdentity(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/identities/")
	if rest == "" || rest == r.URL.Path {
		http.NotFound(w, r)
		return
	}

	handle, action, _ := strings.Cut(rest, "/")
	switch action {
	case "":
		s.handleGetIdentity(w, r, handle)
	case "history":
		s.handleRotationHistory(w, r, handle)
	case "rotate":
		s.handleRotate(w, r, handle)
	default:
		http.NotFound(w, r)
	}
}

// @Title: Get Identity
// @Route: GET /api/identities/{handle}
// @Description: Look up a handle's active signing key (case-insensitive)
// @Response: Public identity object, 404 if unregistered
func (s *Service) handleGetIdentity(w http.ResponseWriter, r *http.Request, handle string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, err := s.store.GetIdentity(handle)
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			s.writeError(w, http.StatusNotFound, "identity not found")
			return
		}
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(identity))
}

// @Title: Get Rotation History
// @Route: GET /api/identities/{handle}/history
// @Description: List an identity's key rotations, oldest first
// @Response: Array of rotation events, 404 if unregistered
func (s *Service) handleRotationHistory(w http.ResponseWriter, r *http.Request, handle string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, err := s.rotation.History(handle)
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			s.writeError(w, http.StatusNotFound, "identity not found")
			return
		}
		s.writeFailure(w, err)
		return
	}
	if events == nil {
		events = []types.RotationEvent{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// @Title: Rotate Signing Key
// @Route: POST /api/identities/{handle}/rotate
// @Description: Replace the signing key using a recovery-key-signed proof
// @Response: 200 with the rotation event, 401 on a bad proof, 429 inside the cooldown
func (s *Service) handleRotate(w http.ResponseWriter, r *http.Request, handle string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The wire body wraps the proof; a bare proof object is also accepted
	// for older clients.
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	var wrapped struct {
		Proof *rotation.Proof `json:"proof"`
	}
	proof := &rotation.Proof{}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Proof != nil {
		proof = wrapped.Proof
	} else if err := json.Unmarshal(raw, proof); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if proof.Handle == "" {
		proof.Handle = handle
	}
	if !strings.EqualFold(proof.Handle, handle) {
		s.writeError(w, http.StatusBadRequest, "proof handle does not match the request path")
		return
	}

	event, err := s.rotation.Rotate(proof, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			s.writeError(w, http.StatusNotFound, "identity not found")
			return
		}
		s.writeFailure(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "rotated",
		"rotation":   event,
		"handle":     event.Handle,
		"new_key":    event.NewKey,
		"rotated_at": event.RotatedAt,
	})
}
