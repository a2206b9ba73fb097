package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"akistel-relay/internal/domain"
)

// EnvelopeRepository is the in-memory message queue. Envelopes are held in a
// single arrival-ordered slice so inbox reads and retention sweeps walk them
// the same way the postgres implementation orders by created_at.
type EnvelopeRepository struct {
	mu        sync.Mutex
	devices   *DeviceRepository
	envelopes []*domain.Envelope
	byID      map[uuid.UUID]*domain.Envelope
}

// NewEnvelopeRepository creates an empty in-memory envelope store
func NewEnvelopeRepository(devices *DeviceRepository) *EnvelopeRepository {
	return &EnvelopeRepository{
		devices: devices,
		byID:    make(map[uuid.UUID]*domain.Envelope),
	}
}

// Create durably stores an envelope and fills in its id and creation time
func (r *EnvelopeRepository) Create(ctx context.Context, envelope *domain.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	envelope.EnvelopeID = uuid.New()
	envelope.CreatedAt = time.Now().UTC()

	stored := *envelope
	r.envelopes = append(r.envelopes, &stored)
	r.byID[stored.EnvelopeID] = &stored

	return nil
}

// Inbox returns undelivered envelopes for a recipient, oldest first
func (r *EnvelopeRepository) Inbox(ctx context.Context, recipientID uuid.UUID, limit int) ([]*domain.InboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var entries []*domain.InboxEntry
	for _, envelope := range r.envelopes {
		if len(entries) >= limit {
			break
		}
		if envelope.RecipientID != recipientID || envelope.DeliveredAt != nil {
			continue
		}
		sender, err := r.devices.GetByID(ctx, envelope.SenderID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &domain.InboxEntry{
			EnvelopeID:      envelope.EnvelopeID,
			SenderID:        envelope.SenderID,
			SenderUserID:    sender.UserID,
			SenderPublicKey: sender.PublicKey,
			Ciphertext:      envelope.Ciphertext,
			Nonce:           envelope.Nonce,
			EphemeralKey:    envelope.EphemeralKey,
			CreatedAt:       envelope.CreatedAt,
		})
	}

	return entries, nil
}

// Ack marks envelopes delivered and returns how many transitioned. Already
// delivered and unknown ids are skipped, so a retried ack counts zero.
func (r *EnvelopeRepository) Ack(ctx context.Context, envelopeIDs []uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	var acked int64
	for _, id := range envelopeIDs {
		envelope, ok := r.byID[id]
		if !ok || envelope.DeliveredAt != nil {
			continue
		}
		deliveredAt := now
		envelope.DeliveredAt = &deliveredAt
		acked++
	}

	return acked, nil
}

// DeleteExpiredBatch removes up to limit envelopes past the retention cutoff:
// delivered before the cutoff, or still undelivered but created before it.
// Rows exactly at the cutoff survive.
func (r *EnvelopeRepository) DeleteExpiredBatch(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	kept := r.envelopes[:0]
	for _, envelope := range r.envelopes {
		expired := false
		if deleted < int64(limit) {
			if envelope.DeliveredAt != nil {
				expired = envelope.DeliveredAt.Before(cutoff)
			} else {
				expired = envelope.CreatedAt.Before(cutoff)
			}
		}
		if expired {
			delete(r.byID, envelope.EnvelopeID)
			deleted++
			continue
		}
		kept = append(kept, envelope)
	}
	r.envelopes = kept

	return deleted, nil
}
