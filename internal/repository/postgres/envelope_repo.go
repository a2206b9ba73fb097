package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"akistel-relay/internal/domain"
	apperrors "akistel-relay/pkg/errors"
)

// EnvelopeRepository handles the durable per-recipient message queue
type EnvelopeRepository struct {
	pool *pgxpool.Pool
}

// NewEnvelopeRepository creates a new EnvelopeRepository
func NewEnvelopeRepository(pool *pgxpool.Pool) *EnvelopeRepository {
	return &EnvelopeRepository{pool: pool}
}

// Create durably stores an envelope and fills in its id and creation time
func (r *EnvelopeRepository) Create(ctx context.Context, envelope *domain.Envelope) error {
	query := `
		INSERT INTO envelopes (sender_id, recipient_id, ciphertext, nonce, ephemeral_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING envelope_id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		envelope.SenderID,
		envelope.RecipientID,
		envelope.Ciphertext,
		envelope.Nonce,
		envelope.EphemeralKey,
	).Scan(&envelope.EnvelopeID, &envelope.CreatedAt)
	if err != nil {
		return apperrors.DatabaseError(err)
	}

	return nil
}

// Inbox returns undelivered envelopes for a recipient, oldest first, joined
// with the sender device so the client can verify and decrypt directly.
func (r *EnvelopeRepository) Inbox(ctx context.Context, recipientID uuid.UUID, limit int) ([]*domain.InboxEntry, error) {
	query := `
		SELECT e.envelope_id, e.sender_id, d.user_id, d.public_key,
		       e.ciphertext, e.nonce, e.ephemeral_key, e.created_at
		FROM envelopes e
		JOIN devices d ON d.device_id = e.sender_id
		WHERE e.recipient_id = $1 AND e.delivered_at IS NULL
		ORDER BY e.created_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, recipientID, limit)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	defer rows.Close()

	var entries []*domain.InboxEntry
	for rows.Next() {
		entry := &domain.InboxEntry{}
		if err := rows.Scan(
			&entry.EnvelopeID,
			&entry.SenderID,
			&entry.SenderUserID,
			&entry.SenderPublicKey,
			&entry.Ciphertext,
			&entry.Nonce,
			&entry.EphemeralKey,
			&entry.CreatedAt,
		); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return entries, nil
}

// Ack marks the given envelopes delivered. Already-delivered and unknown ids
// are ignored, which makes repeated acks converge: only rows actually
// transitioned are counted.
func (r *EnvelopeRepository) Ack(ctx context.Context, envelopeIDs []uuid.UUID) (int64, error) {
	query := `
		UPDATE envelopes
		SET delivered_at = now()
		WHERE envelope_id = ANY($1) AND delivered_at IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, envelopeIDs)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}

	return tag.RowsAffected(), nil
}

// DeleteExpiredBatch removes up to limit envelopes past the retention cutoff,
// whether delivered or not. Strictly-older-than semantics: a row aged exactly
// the cutoff survives. Callers loop over batches so the sweep never holds a
// long transaction on a large table.
func (r *EnvelopeRepository) DeleteExpiredBatch(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	query := `
		DELETE FROM envelopes
		WHERE envelope_id IN (
			SELECT envelope_id FROM envelopes
			WHERE (delivered_at IS NOT NULL AND delivered_at < $1)
			   OR (delivered_at IS NULL AND created_at < $1)
			LIMIT $2
		)
	`

	tag, err := r.pool.Exec(ctx, query, cutoff, limit)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}

	return tag.RowsAffected(), nil
}
