package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pseudo.chat/vouchd/internal/types"
)

// RegisterIdentity inserts a new identity. The handle is claimed
// case-insensitively; re-registering an existing handle in any casing
// returns ErrHandleTaken.
func (s *Store) RegisterIdentity(id types.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if id.CreatedAt.IsZero() {
		id.CreatedAt = now
	}
	if id.UpdatedAt.IsZero() {
		id.UpdatedAt = now
	}

	_, err := s.db.Exec(`INSERT INTO identities
		(handle_lower, handle, signing_key, recovery_key, rotations, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		handleKey(id.Handle), strings.TrimSpace(id.Handle), id.SigningKey,
		nullable(id.RecoveryKey), formatTime(id.CreatedAt), formatTime(id.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrHandleTaken
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// GetIdentity looks up an identity by handle, case-insensitively.
func (s *Store) GetIdentity(handle string) (*types.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT handle, signing_key, recovery_key, rotations, created_at, updated_at
		FROM identities WHERE handle_lower = ?`, handleKey(handle))

	var (
		name, signingKey     string
		recoveryKey          sql.NullString
		rotations            int
		createdAt, updatedAt string
	)
	if err := row.Scan(&name, &signingKey, &recoveryKey, &rotations, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("query identity: %w", err)
	}

	return &types.Identity{
		Handle:      name,
		SigningKey:  signingKey,
		RecoveryKey: recoveryKey.String,
		Rotations:   rotations,
		CreatedAt:   parseTime(createdAt),
		UpdatedAt:   parseTime(updatedAt),
	}, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// isUniqueViolation detects a primary-key conflict without depending on the
// driver's error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
