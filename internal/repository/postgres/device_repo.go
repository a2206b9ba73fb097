package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"akistel-relay/internal/domain"
	apperrors "akistel-relay/pkg/errors"
)

// DeviceRepository handles device identity storage
type DeviceRepository struct {
	pool *pgxpool.Pool
}

// NewDeviceRepository creates a new DeviceRepository
func NewDeviceRepository(pool *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{pool: pool}
}

// Upsert registers a device, or refreshes last_seen_at when the same
// (user_id, public_key) pair is already registered. The unique constraint is
// the authority here; concurrent first registrations of the same pair collapse
// into one row.
func (r *DeviceRepository) Upsert(ctx context.Context, userID, publicKey string) (*domain.Device, error) {
	query := `
		INSERT INTO devices (user_id, public_key)
		VALUES ($1, $2)
		ON CONFLICT (user_id, public_key) DO UPDATE
		SET last_seen_at = now()
		RETURNING device_id, user_id, public_key, last_seen_at, created_at
	`

	device := &domain.Device{}
	err := r.pool.QueryRow(ctx, query, userID, publicKey).Scan(
		&device.DeviceID,
		&device.UserID,
		&device.PublicKey,
		&device.LastSeenAt,
		&device.CreatedAt,
	)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return device, nil
}

// ListByUser returns all of a user's devices ordered by creation time ascending
func (r *DeviceRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Device, error) {
	query := `
		SELECT device_id, user_id, public_key, last_seen_at, created_at
		FROM devices
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	defer rows.Close()

	var devices []*domain.Device
	for rows.Next() {
		device := &domain.Device{}
		if err := rows.Scan(
			&device.DeviceID,
			&device.UserID,
			&device.PublicKey,
			&device.LastSeenAt,
			&device.CreatedAt,
		); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return devices, nil
}

// GetByID retrieves a device by its identifier
func (r *DeviceRepository) GetByID(ctx context.Context, deviceID uuid.UUID) (*domain.Device, error) {
	query := `
		SELECT device_id, user_id, public_key, last_seen_at, created_at
		FROM devices
		WHERE device_id = $1
	`

	device := &domain.Device{}
	err := r.pool.QueryRow(ctx, query, deviceID).Scan(
		&device.DeviceID,
		&device.UserID,
		&device.PublicKey,
		&device.LastSeenAt,
		&device.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.DeviceNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	return device, nil
}
