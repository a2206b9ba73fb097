// Package redis holds the Redis-backed stores: the presence directory and the
// push token registry. Both are best-effort; a degraded Redis never blocks the
// message path.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"akistel-relay/internal/database"
)

const (
	presenceKeyPrefix = "presence:device:"
	presenceSetKey    = "presence:online"
	presenceTTL       = 5 * time.Minute
)

// DirectoryRepository tracks which devices currently hold a live presence
// socket. Entries carry a TTL so a crashed instance's devices age out instead
// of appearing online forever.
type DirectoryRepository struct {
	client *database.RedisClient
}

// NewDirectoryRepository creates a new DirectoryRepository
func NewDirectoryRepository(client *database.RedisClient) *DirectoryRepository {
	return &DirectoryRepository{client: client}
}

func presenceKey(deviceID uuid.UUID) string {
	return fmt.Sprintf("%s%s", presenceKeyPrefix, deviceID)
}

// SetDeviceOnline marks a device as online with a refreshed TTL
func (r *DirectoryRepository) SetDeviceOnline(ctx context.Context, deviceID uuid.UUID) error {
	if err := r.client.SafeSet(ctx, presenceKey(deviceID), "online", presenceTTL).Err(); err != nil {
		return err
	}
	return r.client.SafeSAdd(ctx, presenceSetKey, deviceID.String()).Err()
}

// SetDeviceOffline removes a device from the directory
func (r *DirectoryRepository) SetDeviceOffline(ctx context.Context, deviceID uuid.UUID) error {
	if err := r.client.SafeDel(ctx, presenceKey(deviceID)).Err(); err != nil {
		return err
	}
	return r.client.SafeSRem(ctx, presenceSetKey, deviceID.String()).Err()
}

// IsDeviceOnline reports whether the device has a live presence entry
func (r *DirectoryRepository) IsDeviceOnline(ctx context.Context, deviceID uuid.UUID) (bool, error) {
	count, err := r.client.SafeExists(ctx, presenceKey(deviceID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RefreshDevice extends the presence TTL for a device that is still connected.
// Called from the socket's ping loop.
func (r *DirectoryRepository) RefreshDevice(ctx context.Context, deviceID uuid.UUID) error {
	return r.client.SafeExpire(ctx, presenceKey(deviceID), presenceTTL).Err()
}
