package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"akistel-relay/internal/database"
	"akistel-relay/pkg/push"
)

const pushTokenKeyPrefix = "pushtoken:device:"

// PushTokenRepository stores at most one push token per device as a Redis
// hash. Tokens are device-scoped state, not durable account data, so they
// live next to the presence directory rather than in postgres.
type PushTokenRepository struct {
	client *database.RedisClient
}

// NewPushTokenRepository creates a new PushTokenRepository
func NewPushTokenRepository(client *database.RedisClient) *PushTokenRepository {
	return &PushTokenRepository{client: client}
}

func pushTokenKey(deviceID uuid.UUID) string {
	return fmt.Sprintf("%s%s", pushTokenKeyPrefix, deviceID)
}

// Store saves or replaces the device's push token
func (r *PushTokenRepository) Store(ctx context.Context, token *push.Token) error {
	return r.client.SafeHSet(ctx, pushTokenKey(token.DeviceID),
		"token", token.Token,
		"type", token.Type,
		"platform", token.Platform,
		"updated_at", time.Now().UTC().Format(time.RFC3339),
	).Err()
}

// GetByDevice returns the device's push token, or nil when none is registered
func (r *PushTokenRepository) GetByDevice(ctx context.Context, deviceID uuid.UUID) (*push.Token, error) {
	fields, err := r.client.SafeHGetAll(ctx, pushTokenKey(deviceID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	token := &push.Token{
		DeviceID: deviceID,
		Token:    fields["token"],
		Type:     push.TokenType(fields["type"]),
		Platform: fields["platform"],
	}
	if raw, ok := fields["updated_at"]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			token.UpdatedAt = t
		}
	}

	return token, nil
}

// Delete removes the device's push token
func (r *PushTokenRepository) Delete(ctx context.Context, deviceID uuid.UUID) error {
	return r.client.SafeDel(ctx, pushTokenKey(deviceID)).Err()
}
