package keys

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"akistel-relay/internal/domain"
	apperrors "akistel-relay/pkg/errors"
	"akistel-relay/pkg/metrics"
)

const (
	// MaxOneTimePreKeys caps the pool accepted in a single publish
	MaxOneTimePreKeys = 100

	minKeyLength       = 32
	maxKeyLength       = 128
	minSignatureLength = 64
	maxSignatureLength = 256
	minUserIDLength    = 1
	maxUserIDLength    = 64
)

// Repository interface
type Repository interface {
	Publish(ctx context.Context, deviceID uuid.UUID, identityKey, signedPreKey, signature string, oneTimePreKeys []string) (*domain.KeyBundleHandle, error)
	Fetch(ctx context.Context, deviceID uuid.UUID) (*domain.FetchedBundle, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.BundleSummary, error)
	CountOneTimePreKeys(ctx context.Context, deviceID uuid.UUID) (int, error)
}

// DeviceGetter interface
type DeviceGetter interface {
	GetByID(ctx context.Context, deviceID uuid.UUID) (*domain.Device, error)
}

// Service handles key bundle business logic
type Service struct {
	repo    Repository
	devices DeviceGetter
	metrics *metrics.Metrics
}

// NewService creates a new keys service
func NewService(repo Repository, devices DeviceGetter, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		devices: devices,
		metrics: m,
	}
}

// PublishInput contains a device's key-exchange material
type PublishInput struct {
	DeviceID       uuid.UUID
	IdentityKey    string
	SignedPreKey   string
	Signature      string
	OneTimePreKeys []string
}

// Publish stores or replaces a device's key bundle. The previous bundle and
// its entire one-time pool are discarded; a failed publish leaves them intact.
func (s *Service) Publish(ctx context.Context, input *PublishInput) (*domain.KeyBundleHandle, error) {
	if err := validatePublishInput(input); err != nil {
		return nil, err
	}

	// Reject unknown devices before touching the bundle tables
	if _, err := s.devices.GetByID(ctx, input.DeviceID); err != nil {
		return nil, err
	}

	handle, err := s.repo.Publish(ctx, input.DeviceID, input.IdentityKey, input.SignedPreKey, input.Signature, input.OneTimePreKeys)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordBundlePublished()
	}

	return handle, nil
}

// Fetch returns a device's bundle, consuming one one-time pre-key when the
// pool is non-empty. Exhaustion is not an error.
func (s *Service) Fetch(ctx context.Context, deviceID uuid.UUID) (*domain.FetchedBundle, error) {
	bundle, err := s.repo.Fetch(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil && bundle.OneTimePreKey != nil {
		s.metrics.RecordOneTimeKeyServed()
	}

	return bundle, nil
}

// FetchAllForUser returns bundle summaries for every device of a user that
// has published one. Non-destructive.
func (s *Service) FetchAllForUser(ctx context.Context, userID string) ([]*domain.BundleSummary, error) {
	if len(userID) < minUserIDLength || len(userID) > maxUserIDLength {
		return nil, apperrors.ValidationError("userId must be between 1 and 64 characters")
	}

	return s.repo.ListByUser(ctx, userID)
}

// CountOneTimePreKeys returns the remaining pool size so a client can decide
// when to replenish
func (s *Service) CountOneTimePreKeys(ctx context.Context, deviceID uuid.UUID) (int, error) {
	return s.repo.CountOneTimePreKeys(ctx, deviceID)
}

func validatePublishInput(input *PublishInput) error {
	if len(input.IdentityKey) < minKeyLength || len(input.IdentityKey) > maxKeyLength {
		return apperrors.ValidationError("identityKey must be between 32 and 128 characters")
	}
	if len(input.SignedPreKey) < minKeyLength || len(input.SignedPreKey) > maxKeyLength {
		return apperrors.ValidationError("signedPreKey must be between 32 and 128 characters")
	}
	if len(input.Signature) < minSignatureLength || len(input.Signature) > maxSignatureLength {
		return apperrors.ValidationError("signature must be between 64 and 256 characters")
	}
	if len(input.OneTimePreKeys) > MaxOneTimePreKeys {
		return apperrors.ValidationError(fmt.Sprintf("oneTimePreKeys must not exceed %d entries", MaxOneTimePreKeys))
	}
	for _, key := range input.OneTimePreKeys {
		if len(key) < minKeyLength || len(key) > maxKeyLength {
			return apperrors.ValidationError("each one-time pre-key must be between 32 and 128 characters")
		}
	}
	return nil
}
