package domain

import (
	"time"

	"github.com/google/uuid"
)

// Envelope is one encrypted message in transit. Ciphertext and nonce are
// opaque Base64 blobs; EphemeralKey is present only on a conversation's first
// envelope. A non-nil DeliveredAt marks the envelope delivered and excludes it
// from inbox reads; acknowledgement is monotonic.
// Maps to the envelopes table.
type Envelope struct {
	EnvelopeID   uuid.UUID  `json:"envelope_id" db:"envelope_id"`
	SenderID     uuid.UUID  `json:"sender_id" db:"sender_id"`
	RecipientID  uuid.UUID  `json:"recipient_id" db:"recipient_id"`
	Ciphertext   string     `json:"ciphertext" db:"ciphertext"`
	Nonce        string     `json:"nonce" db:"nonce"`
	EphemeralKey *string    `json:"ephemeral_key,omitempty" db:"ephemeral_key"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
}

// InboxEntry is an undelivered envelope joined with its sender device, so the
// recipient can verify and decrypt without a second lookup.
type InboxEntry struct {
	EnvelopeID      uuid.UUID `json:"id"`
	SenderID        uuid.UUID `json:"sender_id"`
	SenderUserID    string    `json:"sender_user_id"`
	SenderPublicKey string    `json:"sender_public_key"`
	Ciphertext      string    `json:"ciphertext"`
	Nonce           string    `json:"nonce"`
	EphemeralKey    *string   `json:"ephemeral_key,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
