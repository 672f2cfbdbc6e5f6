package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"pseudo.chat/vouchd/internal/types"
)

// CooldownRemaining reports how long the identity must still wait before
// another rotation is allowed. Zero means a rotation may be attempted now.
// This is a side-effect-free pre-check; the authoritative guard is the
// conditional write inside ApplyRotation.
func (s *Store) CooldownRemaining(handle string, now time.Time, cooldown time.Duration) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lastAllowed int64
	err := s.db.QueryRow(`SELECT last_allowed FROM rotation_limits WHERE handle_lower = ?`,
		handleKey(handle)).Scan(&lastAllowed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query rotation limit: %w", err)
	}

	elapsed := now.Unix() - lastAllowed
	if remaining := cooldown - time.Duration(elapsed)*time.Second; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

// ApplyRotation atomically swaps the identity's active signing key, appends
// the rotation-history entry, and advances the cooldown marker in one
// transaction. The cooldown advance is a conditional upsert: if another
// rotation landed inside the window the statement affects no rows and the
// whole transaction rolls back with ErrCooldownActive, so two concurrent
// rotations can never both apply. The key swap is likewise conditional on
// the old key still being active (ErrStaleKey otherwise).
func (s *Store) ApplyRotation(handle, oldKey, newKey string, now time.Time, cooldown time.Duration) (*types.RotationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin rotation: %w", err)
	}

	key := handleKey(handle)
	nowUnix := now.Unix()
	cooldownSecs := int64(cooldown / time.Second)

	res, err := tx.Exec(`INSERT INTO rotation_limits (handle_lower, last_allowed)
		VALUES (?, ?)
		ON CONFLICT(handle_lower) DO UPDATE SET last_allowed = excluded.last_allowed
		WHERE excluded.last_allowed - rotation_limits.last_allowed >= ?`,
		key, nowUnix, cooldownSecs)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("advance rotation limit: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return nil, ErrCooldownActive
	}

	res, err = tx.Exec(`UPDATE identities
		SET signing_key = ?, rotations = rotations + 1, updated_at = ?
		WHERE handle_lower = ? AND signing_key = ?`,
		newKey, formatTime(now), key, oldKey)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("swap signing key: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return nil, ErrStaleKey
	}

	event := types.RotationEvent{
		ID:        uuid.New().String(),
		Handle:    handle,
		OldKey:    oldKey,
		NewKey:    newKey,
		RotatedAt: now,
	}
	if _, err := tx.Exec(`INSERT INTO rotation_history (id, handle_lower, old_key, new_key, rotated_at)
		VALUES (?, ?, ?, ?, ?)`,
		event.ID, key, oldKey, newKey, formatTime(now)); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("append rotation history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rotation: %w", err)
	}

	return &event, nil
}

// ListRotations returns an identity's rotation history, oldest first.
func (s *Store) ListRotations(handle string) ([]types.RotationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, old_key, new_key, rotated_at
		FROM rotation_history WHERE handle_lower = ? ORDER BY rotated_at ASC`,
		handleKey(handle))
	if err != nil {
		return nil, fmt.Errorf("query rotation history: %w", err)
	}
	defer rows.Close()

	var events []types.RotationEvent
	for rows.Next() {
		var (
			event     types.RotationEvent
			rotatedAt string
		)
		if err := rows.Scan(&event.ID, &event.OldKey, &event.NewKey, &rotatedAt); err != nil {
			return nil, fmt.Errorf("scan rotation event: %w", err)
		}
		event.Handle = handle
		event.RotatedAt = parseTime(rotatedAt)
		events = append(events, event)
	}
	return events, rows.Err()
}
