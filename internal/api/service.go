package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"pseudo.chat/vouchd/internal/auth"
	"pseudo.chat/vouchd/internal/logger"
	"pseudo.chat/vouchd/internal/rotation"
	"pseudo.chat/vouchd/internal/store"
)

// Service handles API requests
type Service struct {
	store    *store.Store
	auth     *auth.Authenticator
	rotation *rotation.Engine
	logger   *logger.Logger
}

// NewService creates a new API service
func NewService(st *store.Store, authenticator *auth.Authenticator, engine *rotation.Engine, logger *logger.Logger) *Service {
	return &Service{
		store:    st,
		auth:     authenticator,
		rotation: engine,
		logger:   logger,
	}
}

// writeJSON writes a JSON response
func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeRejection renders a protocol refusal with its reason code so clients
// can branch on a closed set of strings instead of parsing error prose.
func (s *Service) writeRejection(w http.ResponseWriter, rej *auth.Rejection) {
	body := map[string]interface{}{
		"error":  string(rej.Reason),
		"detail": rej.Detail,
	}
	if rej.RetryAfter > 0 {
		body["retry_after_secs"] = int(rej.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rej.RetryAfter.Seconds())))
	}
	s.writeJSON(w, rej.Status(), body)
}

// writeFailure maps an error to either a rejection response or a retryable
// internal failure.
func (s *Service) writeFailure(w http.ResponseWriter, err error) {
	var rej *auth.Rejection
	if errors.As(err, &rej) {
		s.writeRejection(w, rej)
		return
	}
	s.logger.Error(fmt.Sprintf("API: internal failure: %v", err))
	s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
		"error":     "temporary server failure, retry the request",
		"retryable": true,
	})
}
