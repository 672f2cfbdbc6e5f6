// Package types defines the core domain models for vouchd. It contains the
// Identity record, rotation history entries, and stored message metadata
// shared across the store, protocol, and API layers. Identities are owned
// by the handle registry; the protocol core only reads keys and appends
// rotation events.
package types

import (
	"time"
)

// Version is the current version of vouchd
const Version = "0.3.1"

// BuildTime is set at build time via -ldflags
var BuildTime = "dev"

// Identity represents a registered pseudonymous participant. The handle is
// the stable public name; uniqueness is case-insensitive. SigningKey is the
// active day-to-day key, RecoveryKey the cold key that alone can authorize
// replacing it.
type Identity struct {
	Handle      string    `json:"handle"`                 // Unique, case-insensitive participant name
	SigningKey  string    `json:"signing_key"`            // Active public key, "ed25519:<base64>"
	RecoveryKey string    `json:"recovery_key,omitempty"` // Optional cold key; required to ever rotate
	Rotations   int       `json:"rotations"`              // Count of successful key rotations
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RotationEvent is one entry in an identity's rotation history. Appended
// atomically with the signing-key swap it describes.
type RotationEvent struct {
	ID        string    `json:"id"`      // UUID
	Handle    string    `json:"handle"`  // Identity the rotation applied to
	OldKey    string    `json:"old_key"` // Signing key that was replaced
	NewKey    string    `json:"new_key"` // Signing key now active
	RotatedAt time.Time `json:"rotated_at"`
}

// Message is an accepted inbound message as stored by the inbox. Delivery
// and content semantics live elsewhere; vouchd only records what it has
// authenticated and hands back the id.
type Message struct {
	ID         string    `json:"id"` // UUID assigned on acceptance
	From       string    `json:"from"`
	To         string    `json:"to"`
	Text       string    `json:"text"`
	Signed     bool      `json:"signed"` // False only for grace-period traffic
	ReceivedAt time.Time `json:"received_at"`
}
