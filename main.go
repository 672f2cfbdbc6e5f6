// Package main is the entry point for vouchd, the identity authentication
// daemon. It wires the SQLite-backed registry, the message authenticator,
// the key-rotation engine, and the HTTP front end, then runs the nonce
// pruning loop until interrupted.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pseudo.chat/vouchd/internal/api"
	"pseudo.chat/vouchd/internal/auth"
	"pseudo.chat/vouchd/internal/config"
	"pseudo.chat/vouchd/internal/docs"
	"pseudo.chat/vouchd/internal/logger"
	"pseudo.chat/vouchd/internal/ratelimit"
	"pseudo.chat/vouchd/internal/rotation"
	"pseudo.chat/vouchd/internal/store"
	"pseudo.chat/vouchd/internal/web"
)

func main() {
	log.Println("vouchd starting...")

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	st, err := store.NewStore(cfg.DBFile)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()
	log.Println("Store initialized")

	l := logger.New(cfg.LogBufferSize)
	authenticator := auth.New(st, cfg, l)
	engine := rotation.New(st, cfg, l)
	apiService := api.NewService(st, authenticator, engine, l)
	docsService := docs.NewService(cfg.DocsDir)
	limiter := ratelimit.New(cfg.RequestsPerSec, cfg.RequestBurst, 10*time.Minute)

	if cfg.GracePeriod {
		log.Printf("Grace period active: unsigned messages accepted until %s", cfg.GracePeriodEnds)
	}

	port := resolvePort(cfg.Port)
	if err := ensurePortAvailable(port); err != nil {
		log.Fatalf("Port %d unavailable: %v", port, err)
	}

	server := web.NewServer(port, apiService, docsService, l, limiter)
	serverErrors := server.Start()
	go func() {
		if err := <-serverErrors; err != nil {
			log.Fatalf("HTTP server exited: %v", err)
		}
	}()

	go pruneNonces(st, cfg, l)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
}

// pruneNonces periodically deletes ledger entries too old to ever pass the
// freshness gate again.
func pruneNonces(st *store.Store, cfg *config.Config, l *logger.Logger) {
	interval := time.Duration(cfg.NoncePruneIntervalSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		// Keep a margin beyond the freshness window so a prune racing an
		// in-flight envelope can never reopen a spent nonce.
		cutoff := time.Now().Add(-2 * cfg.FreshnessWindow())
		removed, err := st.PruneNonces(cutoff)
		if err != nil {
			l.Error(fmt.Sprintf("Nonce prune failed: %v", err))
			continue
		}
		if removed > 0 {
			l.Info(fmt.Sprintf("Pruned %d expired nonces", removed))
		}
	}
}

func resolvePort(defaultPort int) int {
	portStr := os.Getenv("PORT")
	if portStr == "" {
		return defaultPort
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		log.Printf("Warning: invalid PORT value %q, using %d", portStr, defaultPort)
		return defaultPort
	}

	return port
}

func ensurePortAvailable(port int) error {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return listener.Close()
}
