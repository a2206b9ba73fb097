// Package memory provides mutex-serialized in-memory implementations of the
// storage interfaces. It backs STORAGE_BACKEND=memory for local development
// and gives the property tests a stateful substrate without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"akistel-relay/internal/domain"
	apperrors "akistel-relay/pkg/errors"
)

// DeviceRepository is the in-memory device store
type DeviceRepository struct {
	mu      sync.Mutex
	devices map[uuid.UUID]*domain.Device
	byPair  map[pairKey]uuid.UUID
	seq     map[uuid.UUID]int
	nextSeq int
}

type pairKey struct {
	userID    string
	publicKey string
}

// NewDeviceRepository creates an empty in-memory device store
func NewDeviceRepository() *DeviceRepository {
	return &DeviceRepository{
		devices: make(map[uuid.UUID]*domain.Device),
		byPair:  make(map[pairKey]uuid.UUID),
		seq:     make(map[uuid.UUID]int),
	}
}

// Upsert registers a device or refreshes last_seen_at for an existing
// (userID, publicKey) pair. The single mutex is the serialization point that
// the database's unique constraint provides in the postgres implementation.
func (r *DeviceRepository) Upsert(ctx context.Context, userID, publicKey string) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{userID: userID, publicKey: publicKey}
	if id, ok := r.byPair[key]; ok {
		device := r.devices[id]
		device.LastSeenAt = time.Now().UTC()
		return copyDevice(device), nil
	}

	now := time.Now().UTC()
	device := &domain.Device{
		DeviceID:   uuid.New(),
		UserID:     userID,
		PublicKey:  publicKey,
		LastSeenAt: now,
		CreatedAt:  now,
	}
	r.devices[device.DeviceID] = device
	r.byPair[key] = device.DeviceID
	r.seq[device.DeviceID] = r.nextSeq
	r.nextSeq++

	return copyDevice(device), nil
}

// ListByUser returns the user's devices in registration order
func (r *DeviceRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var devices []*domain.Device
	for _, device := range r.devices {
		if device.UserID == userID {
			devices = append(devices, copyDevice(device))
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		return r.seq[devices[i].DeviceID] < r.seq[devices[j].DeviceID]
	})

	return devices, nil
}

// GetByID retrieves a device by its identifier
func (r *DeviceRepository) GetByID(ctx context.Context, deviceID uuid.UUID) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil, apperrors.DeviceNotFoundError()
	}
	return copyDevice(device), nil
}

func copyDevice(d *domain.Device) *domain.Device {
	c := *d
	return &c
}
