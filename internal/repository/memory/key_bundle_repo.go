package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"akistel-relay/internal/domain"
	apperrors "akistel-relay/pkg/errors"
)

type storedBundle struct {
	bundleID      uuid.UUID
	identityKey   string
	signedPreKey  string
	signature     string
	updatedAt     time.Time
	oneTimePrekey []string
}

// KeyBundleRepository is the in-memory key bundle store. It consults the
// device repository where the postgres implementation joins the devices table.
type KeyBundleRepository struct {
	mu      sync.Mutex
	devices *DeviceRepository
	bundles map[uuid.UUID]*storedBundle
}

// NewKeyBundleRepository creates an empty in-memory key bundle store
func NewKeyBundleRepository(devices *DeviceRepository) *KeyBundleRepository {
	return &KeyBundleRepository{
		devices: devices,
		bundles: make(map[uuid.UUID]*storedBundle),
	}
}

// Publish replaces the device's bundle and its entire one-time pre-key pool
func (r *KeyBundleRepository) Publish(ctx context.Context, deviceID uuid.UUID, identityKey, signedPreKey, signature string, oneTimePreKeys []string) (*domain.KeyBundleHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.bundles[deviceID]
	if !ok {
		stored = &storedBundle{bundleID: uuid.New()}
		r.bundles[deviceID] = stored
	}
	stored.identityKey = identityKey
	stored.signedPreKey = signedPreKey
	stored.signature = signature
	stored.updatedAt = time.Now().UTC()
	stored.oneTimePrekey = append([]string(nil), oneTimePreKeys...)

	return &domain.KeyBundleHandle{
		BundleID:  stored.bundleID,
		DeviceID:  deviceID,
		UpdatedAt: stored.updatedAt,
	}, nil
}

// Fetch returns the device's bundle and atomically consumes the oldest
// one-time pre-key. Each key is handed to exactly one caller; the mutex
// serializes concurrent fetches the way FOR UPDATE does in postgres.
func (r *KeyBundleRepository) Fetch(ctx context.Context, deviceID uuid.UUID) (*domain.FetchedBundle, error) {
	device, err := r.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.bundles[deviceID]
	if !ok {
		return nil, apperrors.KeyBundleNotFoundError()
	}

	fetched := &domain.FetchedBundle{
		DeviceID:        deviceID,
		UserID:          device.UserID,
		DevicePublicKey: device.PublicKey,
		IdentityKey:     stored.identityKey,
		SignedPreKey:    stored.signedPreKey,
		Signature:       stored.signature,
	}
	if len(stored.oneTimePrekey) > 0 {
		key := stored.oneTimePrekey[0]
		stored.oneTimePrekey = stored.oneTimePrekey[1:]
		fetched.OneTimePreKey = &key
	}

	return fetched, nil
}

// ListByUser returns bundle summaries for every device of the user that has one
func (r *KeyBundleRepository) ListByUser(ctx context.Context, userID string) ([]*domain.BundleSummary, error) {
	devices, err := r.devices.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var summaries []*domain.BundleSummary
	for _, device := range devices {
		stored, ok := r.bundles[device.DeviceID]
		if !ok {
			continue
		}
		summaries = append(summaries, &domain.BundleSummary{
			DeviceID:        device.DeviceID,
			DevicePublicKey: device.PublicKey,
			IdentityKey:     stored.identityKey,
			SignedPreKey:    stored.signedPreKey,
			Signature:       stored.signature,
		})
	}

	return summaries, nil
}

// HasBundles reports which of the given devices have a published bundle
func (r *KeyBundleRepository) HasBundles(ctx context.Context, deviceIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make(map[uuid.UUID]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		_, ok := r.bundles[id]
		result[id] = ok
	}
	return result, nil
}

// CountOneTimePreKeys returns the remaining pool size for a device
func (r *KeyBundleRepository) CountOneTimePreKeys(ctx context.Context, deviceID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.bundles[deviceID]
	if !ok {
		return 0, nil
	}
	return len(stored.oneTimePrekey), nil
}
