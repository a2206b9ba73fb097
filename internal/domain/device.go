package domain

import (
	"time"

	"github.com/google/uuid"
)

// Device represents the public half of one client-held key pair.
// A user may own multiple devices; the pair (user_id, public_key) is unique.
// Maps to the devices table.
type Device struct {
	DeviceID   uuid.UUID `json:"device_id" db:"device_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	PublicKey  string    `json:"public_key" db:"public_key"` // Base64 encoded Ed25519 public key
	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DeviceSummary is a listing entry for one of a user's devices.
// It reports whether a key bundle exists without exposing its contents.
type DeviceSummary struct {
	DeviceID     uuid.UUID `json:"device_id"`
	PublicKey    string    `json:"public_key"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	HasKeyBundle bool      `json:"has_key_bundle"`
}
