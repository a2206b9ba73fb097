package device

import (
	"context"

	"github.com/google/uuid"

	"akistel-relay/internal/domain"
	apperrors "akistel-relay/pkg/errors"
)

const (
	minUserIDLength    = 1
	maxUserIDLength    = 64
	minPublicKeyLength = 32
	maxPublicKeyLength = 128
)

// Repository interface
type Repository interface {
	Upsert(ctx context.Context, userID, publicKey string) (*domain.Device, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Device, error)
	GetByID(ctx context.Context, deviceID uuid.UUID) (*domain.Device, error)
}

// BundleChecker interface
type BundleChecker interface {
	HasBundles(ctx context.Context, deviceIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

// Service handles device registry business logic
type Service struct {
	repo    Repository
	bundles BundleChecker
}

// NewService creates a new device service
func NewService(repo Repository, bundles BundleChecker) *Service {
	return &Service{
		repo:    repo,
		bundles: bundles,
	}
}

// Register creates a device for the (userID, publicKey) pair, or refreshes
// last_seen_at when the pair is already registered. Same pair, same device id,
// no matter how many times a client retries.
func (s *Service) Register(ctx context.Context, userID, publicKey string) (*domain.Device, error) {
	if len(userID) < minUserIDLength || len(userID) > maxUserIDLength {
		return nil, apperrors.ValidationError("userId must be between 1 and 64 characters")
	}
	if len(publicKey) < minPublicKeyLength || len(publicKey) > maxPublicKeyLength {
		return nil, apperrors.ValidationError("publicKey must be between 32 and 128 characters")
	}

	return s.repo.Upsert(ctx, userID, publicKey)
}

// ListByUser returns the user's devices in registration order, each annotated
// with whether it has a published key bundle. An unknown user yields an empty
// list, not an error.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*domain.DeviceSummary, error) {
	if len(userID) < minUserIDLength || len(userID) > maxUserIDLength {
		return nil, apperrors.ValidationError("userId must be between 1 and 64 characters")
	}

	devices, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	deviceIDs := make([]uuid.UUID, len(devices))
	for i, d := range devices {
		deviceIDs[i] = d.DeviceID
	}

	hasBundle, err := s.bundles.HasBundles(ctx, deviceIDs)
	if err != nil {
		return nil, err
	}

	summaries := make([]*domain.DeviceSummary, len(devices))
	for i, d := range devices {
		summaries[i] = &domain.DeviceSummary{
			DeviceID:     d.DeviceID,
			PublicKey:    d.PublicKey,
			LastSeenAt:   d.LastSeenAt,
			HasKeyBundle: hasBundle[d.DeviceID],
		}
	}

	return summaries, nil
}

// GetByID retrieves a single device
func (s *Service) GetByID(ctx context.Context, deviceID uuid.UUID) (*domain.Device, error) {
	return s.repo.GetByID(ctx, deviceID)
}
