// Package web implements the HTTP server for vouchd. It wires the JSON API,
// the operator event feed over websocket, and the rendered protocol docs,
// and applies the per-client rate limit to the endpoints that spend
// protocol state.
package web

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"pseudo.chat/vouchd/internal/api"
	"pseudo.chat/vouchd/internal/docs"
	"pseudo.chat/vouchd/internal/logger"
	"pseudo.chat/vouchd/internal/ratelimit"
)

// Server is the HTTP front end for the API, docs, and event feed.
type Server struct {
	port       int
	logger     *logger.Logger
	apiService *api.Service
	docs       *docs.Service
	limiter    *ratelimit.KeyLimiter
}

// NewServer assembles the front end. limiter may be nil to disable
// transport rate limiting.
func NewServer(port int, apiService *api.Service, docsService *docs.Service, l *logger.Logger, limiter *ratelimit.KeyLimiter) *Server {
	return &Server{
		port:       port,
		logger:     l,
		apiService: apiService,
		docs:       docsService,
		limiter:    limiter,
	}
}

// Logger returns the server's logger instance
func (s *Server) Logger() *logger.Logger {
	return s.logger
}

// Start runs the HTTP server in the background and returns a channel that
// yields the terminal listen error.
func (s *Server) Start() <-chan error {
	log.Printf("vouchd: serving API on http://localhost:%d", s.port)

	mux := http.NewServeMux()

	// API routes (delegated to apiService)
	mux.HandleFunc("/api/health", s.apiService.HandleHealth)
	mux.HandleFunc("/api/version", s.apiService.HandleVersion)
	mux.HandleFunc("/api/identities", s.limited(s.apiService.HandleRegisterIdentity))
	mux.HandleFunc("/api/identities/", s.limited(s.apiService.HandleIdentity))
	mux.HandleFunc("/api/messages", s.limited(s.apiService.HandleSubmitMessage))

	// Docs routes
	mux.HandleFunc("/api/docs", s.handleDocsList)
	mux.HandleFunc("/api/docs/", s.handleDocContent)

	// WebSocket routes
	mux.HandleFunc("/ws/events", s.handleEventsWS)

	addr := fmt.Sprintf(":%d", s.port)
	errCh := make(chan error, 1)

	go func() {
		err := http.ListenAndServe(addr, mux)
		errCh <- err
		close(errCh)
	}()

	return errCh
}

// limited wraps a handler with the per-client token bucket. Only endpoints
// that consume protocol state (nonces, cooldowns, registry rows) pay the
// toll; health and docs stay unmetered.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r), time.Now()) {
			s.logger.Warning(fmt.Sprintf("Rate limited %s %s from %s", r.Method, r.URL.Path, clientIP(r)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintln(w, `{"error":"rate_limited","detail":"too many requests"}`)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
