package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RecordNonce inserts a (handle, nonce) pair if it has never been seen.
// It returns true exactly once per pair: concurrent presentations of the
// same nonce race on the insert and only one observes first_seen. The
// insert uses ON CONFLICT DO NOTHING so the check-and-set is a single
// atomic statement, never a read followed by a write.
func (s *Store) RecordNonce(handle, nonce string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`INSERT INTO nonces (handle_lower, nonce, first_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(handle_lower, nonce) DO NOTHING`,
		handleKey(handle), nonce, formatTime(now))
	if err != nil {
		return false, fmt.Errorf("record nonce: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record nonce result: %w", err)
	}
	return affected == 1, nil
}

// NonceSeen reports whether a (handle, nonce) pair is already in the
// ledger without recording anything. Callers use it to refuse an obvious
// replay before spending other checks; RecordNonce remains the
// authoritative atomic gate.
func (s *Store) NonceSeen(handle, nonce string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRow(`SELECT 1 FROM nonces WHERE handle_lower = ? AND nonce = ?`,
		handleKey(handle), nonce).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query nonce: %w", err)
	}
	return true, nil
}

// PruneNonces deletes ledger entries first seen before cutoff. Entries that
// old are already unusable because the freshness gate rejects their
// timestamps, so pruning is an optimization, not a correctness requirement.
func (s *Store) PruneNonces(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM nonces WHERE first_seen < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune nonces: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune nonces result: %w", err)
	}
	return removed, nil
}
