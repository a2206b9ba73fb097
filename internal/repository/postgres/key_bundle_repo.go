package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"akistel-relay/internal/domain"
	apperrors "akistel-relay/pkg/errors"
)

// KeyBundleRepository handles published key-exchange material. The bundle row
// lives in key_bundles; the one-time pool is a position-ordered child table so
// consumption can lock and remove a single head row.
type KeyBundleRepository struct {
	pool *pgxpool.Pool
}

// NewKeyBundleRepository creates a new KeyBundleRepository
func NewKeyBundleRepository(pool *pgxpool.Pool) *KeyBundleRepository {
	return &KeyBundleRepository{pool: pool}
}

// Publish replaces a device's bundle and its whole one-time pool in one
// transaction. Publishing is all-or-nothing: a failure leaves the previous
// bundle untouched.
func (r *KeyBundleRepository) Publish(ctx context.Context, deviceID uuid.UUID, identityKey, signedPreKey, signature string, oneTimePreKeys []string) (*domain.KeyBundleHandle, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	defer tx.Rollback(ctx)

	upsertQuery := `
		INSERT INTO key_bundles (device_id, identity_key, signed_pre_key, signature, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (device_id) DO UPDATE
		SET identity_key = EXCLUDED.identity_key,
		    signed_pre_key = EXCLUDED.signed_pre_key,
		    signature = EXCLUDED.signature,
		    updated_at = now()
		RETURNING bundle_id, updated_at
	`

	handle := &domain.KeyBundleHandle{DeviceID: deviceID}
	err = tx.QueryRow(ctx, upsertQuery, deviceID, identityKey, signedPreKey, signature).Scan(
		&handle.BundleID,
		&handle.UpdatedAt,
	)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	// Destructive replace: the previous pool never survives a re-publish
	if _, err := tx.Exec(ctx, `DELETE FROM one_time_pre_keys WHERE device_id = $1`, deviceID); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	insertQuery := `
		INSERT INTO one_time_pre_keys (device_id, public_key, position)
		VALUES ($1, $2, $3)
	`
	for i, key := range oneTimePreKeys {
		if _, err := tx.Exec(ctx, insertQuery, deviceID, key, i); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return handle, nil
}

// Fetch returns a device's bundle and atomically consumes the head of its
// one-time pool. Locking the bundle row itself serializes concurrent fetches
// for the same device, so no one-time pre-key is ever served twice and a
// fetch never misses a remaining key after a blocked head row is deleted
// under it. An empty pool is not an error; the one-time key is simply absent.
func (r *KeyBundleRepository) Fetch(ctx context.Context, deviceID uuid.UUID) (*domain.FetchedBundle, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	defer tx.Rollback(ctx)

	bundleQuery := `
		SELECT b.device_id, d.user_id, d.public_key, b.identity_key, b.signed_pre_key, b.signature
		FROM key_bundles b
		JOIN devices d ON d.device_id = b.device_id
		WHERE b.device_id = $1
		FOR UPDATE OF b
	`

	bundle := &domain.FetchedBundle{}
	err = tx.QueryRow(ctx, bundleQuery, deviceID).Scan(
		&bundle.DeviceID,
		&bundle.UserID,
		&bundle.DevicePublicKey,
		&bundle.IdentityKey,
		&bundle.SignedPreKey,
		&bundle.Signature,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.KeyBundleNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	// The bundle row lock above already serializes this pop
	popQuery := `
		SELECT key_id, public_key
		FROM one_time_pre_keys
		WHERE device_id = $1
		ORDER BY position
		LIMIT 1
	`

	var keyID uuid.UUID
	var publicKey string
	err = tx.QueryRow(ctx, popQuery, deviceID).Scan(&keyID, &publicKey)
	if err != nil && err != pgx.ErrNoRows {
		return nil, apperrors.DatabaseError(err)
	}
	if err == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM one_time_pre_keys WHERE key_id = $1`, keyID); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		bundle.OneTimePreKey = &publicKey
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return bundle, nil
}

// ListByUser returns bundle summaries for every device of the user that has a
// published bundle. Non-destructive: no one-time pre-key is consumed.
func (r *KeyBundleRepository) ListByUser(ctx context.Context, userID string) ([]*domain.BundleSummary, error) {
	query := `
		SELECT d.device_id, d.public_key, b.identity_key, b.signed_pre_key, b.signature
		FROM devices d
		JOIN key_bundles b ON b.device_id = d.device_id
		WHERE d.user_id = $1
		ORDER BY d.created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	defer rows.Close()

	var bundles []*domain.BundleSummary
	for rows.Next() {
		summary := &domain.BundleSummary{}
		if err := rows.Scan(
			&summary.DeviceID,
			&summary.DevicePublicKey,
			&summary.IdentityKey,
			&summary.SignedPreKey,
			&summary.Signature,
		); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		bundles = append(bundles, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return bundles, nil
}

// HasBundles reports which of the given devices have a published bundle
func (r *KeyBundleRepository) HasBundles(ctx context.Context, deviceIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	result := make(map[uuid.UUID]bool, len(deviceIDs))
	if len(deviceIDs) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT device_id FROM key_bundles WHERE device_id = ANY($1)`, deviceIDs)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		result[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return result, nil
}

// CountOneTimePreKeys returns the remaining pool size for a device
func (r *KeyBundleRepository) CountOneTimePreKeys(ctx context.Context, deviceID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM one_time_pre_keys WHERE device_id = $1`, deviceID).Scan(&count)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}
	return count, nil
}
