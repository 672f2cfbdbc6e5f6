package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"pseudo.chat/vouchd/internal/auth"
	"pseudo.chat/vouchd/internal/types"
)

const maxMessageBytes = 16 * 1024

// @Title: Submit Message
// @Route: POST /api/messages
// @Description: Authenticate and accept a chat message envelope
// @Response: 200 with {"id", "status"}, 401 with a reason code on refusal
func (s *Service) HandleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg auth.SignedMessage
	body := http.MaxBytesReader(w, r.Body, maxMessageBytes)
	if err := json.NewDecoder(body).Decode(&msg); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg.From == "" || msg.To == "" || msg.Text == "" {
		s.writeError(w, http.StatusBadRequest, "from, to, and text are required")
		return
	}

	now := time.Now()
	result, err := s.auth.VerifyMessage(&msg, now)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	stored := types.Message{
		ID:         uuid.New().String(),
		From:       msg.From,
		To:         msg.To,
		Text:       msg.Text,
		Signed:     result.Signed,
		ReceivedAt: now,
	}
	if err := s.store.SaveMessage(stored); err != nil {
		s.writeFailure(w, err)
		return
	}

	response := map[string]interface{}{
		"id":     stored.ID,
		"status": "accepted",
	}
	if result.Warning != "" {
		response["warning"] = result.Warning
		if result.GracePeriodEnds != "" {
			response["grace_period_ends"] = result.GracePeriodEnds
		}
	}

	s.logger.Info(fmt.Sprintf("Accepted message %s from %s (signed=%t)", stored.ID, stored.From, stored.Signed))
	s.writeJSON(w, http.StatusOK, response)
}
