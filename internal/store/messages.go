package store

import (
	"database/sql"
	"errors"
	"fmt"

	"pseudo.chat/vouchd/internal/types"
)

// SaveMessage persists an accepted message so the caller can hand the id
// back to the sender.
func (s *Store) SaveMessage(msg types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	signed := 0
	if msg.Signed {
		signed = 1
	}

	_, err := s.db.Exec(`INSERT INTO messages (id, sender, recipient, body, signed, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.From, msg.To, msg.Text, signed, formatTime(msg.ReceivedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage fetches a stored message by id.
func (s *Store) GetMessage(id string) (*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT id, sender, recipient, body, signed, received_at
		FROM messages WHERE id = ?`, id)

	var (
		msg        types.Message
		signed     int
		receivedAt string
	)
	if err := row.Scan(&msg.ID, &msg.From, &msg.To, &msg.Text, &signed, &receivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message not found: %s", id)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	msg.Signed = signed == 1
	msg.ReceivedAt = parseTime(receivedAt)
	return &msg, nil
}
