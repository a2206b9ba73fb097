package envelope

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"akistel-relay/internal/domain"
	apperrors "akistel-relay/pkg/errors"
	"akistel-relay/pkg/logger"
	"akistel-relay/pkg/metrics"
)

const (
	// DefaultInboxLimit is both the default and the ceiling for inbox reads
	DefaultInboxLimit = 100

	// MaxAckBatch caps how many envelope ids a single ack may carry
	MaxAckBatch = 100

	cleanupBatchSize = 1000
)

// Repository interface
type Repository interface {
	Create(ctx context.Context, envelope *domain.Envelope) error
	Inbox(ctx context.Context, recipientID uuid.UUID, limit int) ([]*domain.InboxEntry, error)
	Ack(ctx context.Context, envelopeIDs []uuid.UUID) (int64, error)
	DeleteExpiredBatch(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// DeviceGetter interface
type DeviceGetter interface {
	GetByID(ctx context.Context, deviceID uuid.UUID) (*domain.Device, error)
}

// Notifier pushes an event to a recipient's live presence socket.
// Returns false when the device has no socket on this instance.
type Notifier interface {
	Push(deviceID uuid.UUID, payload interface{}) bool
}

// OfflinePusher wakes a device through an external push provider
type OfflinePusher interface {
	NotifyNewEnvelope(ctx context.Context, recipientID uuid.UUID, envelopeID uuid.UUID, senderID uuid.UUID, createdAt time.Time) bool
}

// NewMessageEvent is the frame pushed to a recipient's presence socket when
// an envelope lands in its queue
type NewMessageEvent struct {
	Type       string    `json:"type"`
	EnvelopeID uuid.UUID `json:"envelope_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	Timestamp  int64     `json:"timestamp"`
}

// Service handles the store-and-forward envelope queue
type Service struct {
	repo          Repository
	devices       DeviceGetter
	notifier      Notifier
	offlinePusher OfflinePusher
	metrics       *metrics.Metrics
}

// NewService creates a new envelope service. Notifier and offline pusher are
// optional; a nil value just disables that delivery hint path.
func NewService(repo Repository, devices DeviceGetter, notifier Notifier, offlinePusher OfflinePusher, m *metrics.Metrics) *Service {
	return &Service{
		repo:          repo,
		devices:       devices,
		notifier:      notifier,
		offlinePusher: offlinePusher,
		metrics:       m,
	}
}

// SendInput contains an encrypted envelope to relay
type SendInput struct {
	SenderID     uuid.UUID
	RecipientID  uuid.UUID
	Ciphertext   string
	Nonce        string
	EphemeralKey *string
}

// Send durably stores an envelope for the recipient, then fires best-effort
// delivery hints. The send succeeds once the envelope is stored; every hint
// failure is swallowed and logged, never surfaced to the sender.
func (s *Service) Send(ctx context.Context, input *SendInput) (*domain.Envelope, error) {
	if err := validateSendInput(input); err != nil {
		return nil, err
	}

	if _, err := s.devices.GetByID(ctx, input.SenderID); err != nil {
		return nil, err
	}
	if _, err := s.devices.GetByID(ctx, input.RecipientID); err != nil {
		return nil, err
	}

	envelope := &domain.Envelope{
		SenderID:     input.SenderID,
		RecipientID:  input.RecipientID,
		Ciphertext:   input.Ciphertext,
		Nonce:        input.Nonce,
		EphemeralKey: input.EphemeralKey,
	}

	if err := s.repo.Create(ctx, envelope); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordEnvelopeStored()
	}

	s.notifyRecipient(ctx, envelope)

	return envelope, nil
}

// notifyRecipient tries the live presence socket first and falls back to the
// external push provider. Metadata only; payloads never include ciphertext.
func (s *Service) notifyRecipient(ctx context.Context, envelope *domain.Envelope) {
	event := &NewMessageEvent{
		Type:       "new_message",
		EnvelopeID: envelope.EnvelopeID,
		SenderID:   envelope.SenderID,
		Timestamp:  envelope.CreatedAt.UnixMilli(),
	}

	if s.notifier != nil && s.notifier.Push(envelope.RecipientID, event) {
		if s.metrics != nil {
			s.metrics.RecordPushDelivered("websocket")
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordPushMissed("websocket")
	}

	if s.offlinePusher == nil {
		return
	}
	if s.offlinePusher.NotifyNewEnvelope(ctx, envelope.RecipientID, envelope.EnvelopeID, envelope.SenderID, envelope.CreatedAt) {
		if s.metrics != nil {
			s.metrics.RecordPushDelivered("push_provider")
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordPushMissed("push_provider")
	}

	logger.Debug("No delivery hint reached recipient",
		zap.String("recipient_id", envelope.RecipientID.String()),
		zap.String("envelope_id", envelope.EnvelopeID.String()))
}

// Inbox returns the recipient's undelivered envelopes, oldest first. The limit
// is clamped to the ceiling; zero or negative means the default.
func (s *Service) Inbox(ctx context.Context, recipientID uuid.UUID, limit int) ([]*domain.InboxEntry, error) {
	if limit <= 0 || limit > DefaultInboxLimit {
		limit = DefaultInboxLimit
	}

	entries, err := s.repo.Inbox(ctx, recipientID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*domain.InboxEntry{}
	}

	return entries, nil
}

// Ack marks envelopes delivered and returns how many actually transitioned.
// Retrying an ack is safe: already delivered and unknown ids count zero.
func (s *Service) Ack(ctx context.Context, envelopeIDs []uuid.UUID) (int64, error) {
	if len(envelopeIDs) < 1 || len(envelopeIDs) > MaxAckBatch {
		return 0, apperrors.ValidationError(fmt.Sprintf("envelopeIds must contain between 1 and %d entries", MaxAckBatch))
	}

	acked, err := s.repo.Ack(ctx, envelopeIDs)
	if err != nil {
		return 0, err
	}

	if s.metrics != nil && acked > 0 {
		s.metrics.RecordEnvelopesAcked(int(acked))
	}

	return acked, nil
}

// Cleanup purges envelopes past the retention cutoff in batches so a large
// backlog never holds one long transaction. Returns the total purged.
func (s *Service) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := s.repo.DeleteExpiredBatch(ctx, cutoff, cleanupBatchSize)
		if err != nil {
			return total, err
		}
		total += deleted

		if deleted < cleanupBatchSize {
			break
		}
	}

	if s.metrics != nil && total > 0 {
		s.metrics.RecordEnvelopesPurged(int(total))
	}

	return total, nil
}

// StartSweep runs Cleanup on an interval until the context is cancelled
func (s *Service) StartSweep(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purged, err := s.Cleanup(ctx, maxAge)
				if err != nil {
					logger.Error("Retention sweep failed",
						zap.Int64("purged_before_failure", purged),
						zap.Error(err))
					continue
				}
				if purged > 0 {
					logger.Info("Retention sweep completed",
						zap.Int64("purged", purged),
						zap.Duration("max_age", maxAge))
				}
			}
		}
	}()
}

func validateSendInput(input *SendInput) error {
	if len(input.Ciphertext) == 0 {
		return apperrors.MissingFieldError("ciphertext")
	}
	if len(input.Nonce) == 0 {
		return apperrors.MissingFieldError("nonce")
	}
	if input.EphemeralKey != nil && len(*input.EphemeralKey) == 0 {
		return apperrors.ValidationError("ephemeralKey must not be empty when present")
	}
	return nil
}
