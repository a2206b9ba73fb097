package domain

import (
	"time"

	"github.com/google/uuid"
)

// KeyBundle is the key-exchange material a device publishes so peers can
// initiate an X3DH session with it. Exactly one bundle per device; publishing
// again replaces identity key, signed pre-key, signature and the whole
// one-time pool. All key material is opaque to the server (Base64 blobs,
// signature verified client-side).
// Maps to the key_bundles table; the one-time pool lives in one_time_pre_keys.
type KeyBundle struct {
	BundleID     uuid.UUID `json:"key_bundle_id" db:"bundle_id"`
	DeviceID     uuid.UUID `json:"device_id" db:"device_id"`
	IdentityKey  string    `json:"identity_key" db:"identity_key"`
	SignedPreKey string    `json:"signed_pre_key" db:"signed_pre_key"`
	Signature    string    `json:"signature" db:"signature"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// KeyBundleHandle is what a publish echoes back.
// It never carries the one-time pool.
type KeyBundleHandle struct {
	BundleID  uuid.UUID `json:"key_bundle_id"`
	DeviceID  uuid.UUID `json:"device_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FetchedBundle is the response to a per-device bundle fetch. OneTimePreKey is
// the consumed pool head, nil when the pool is exhausted.
type FetchedBundle struct {
	DeviceID        uuid.UUID `json:"device_id"`
	UserID          string    `json:"user_id"`
	DevicePublicKey string    `json:"device_public_key"`
	IdentityKey     string    `json:"identity_key"`
	SignedPreKey    string    `json:"signed_pre_key"`
	Signature       string    `json:"signature"`
	OneTimePreKey   *string   `json:"one_time_pre_key"`
}

// BundleSummary is one entry of a per-user bundle listing.
// Listing is non-destructive: no one-time pre-key is consumed.
type BundleSummary struct {
	DeviceID        uuid.UUID `json:"device_id"`
	DevicePublicKey string    `json:"device_public_key"`
	IdentityKey     string    `json:"identity_key"`
	SignedPreKey    string    `json:"signed_pre_key"`
	Signature       string    `json:"signature"`
}
