package registration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/programme-lv/proctor/logger"
)

type PgRegistry struct {
	pool *pgxpool.Pool
}

func NewPgRegistry(pool *pgxpool.Pool) *PgRegistry {
	return &PgRegistry{pool: pool}
}

func (r *PgRegistry) IsConfirmed(ctx context.Context, id uuid.UUID, examID string, userUUID uuid.UUID) (bool, error) {
	log := logger.FromContext(ctx)
	query := `SELECT status FROM registrations WHERE uuid = $1 AND exam_id = $2 AND user_uuid = $3`
	log.Debug("executing query", "query", query, "registration_uuid", id)

	var status Status
	err := r.pool.QueryRow(ctx, query, id, examID, userUUID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		log.Debug("failed to get registration", "error", err)
		return false, fmt.Errorf("failed to get registration: %w", err)
	}
	return status == StatusConfirmed, nil
}

func (r *PgRegistry) Disqualify(ctx context.Context, id uuid.UUID, reason string) error {
	log := logger.FromContext(ctx)
	query := `
		UPDATE registrations
		SET status = 'disqualified', disqualified_reason = $2, updated_at = NOW()
		WHERE uuid = $1
	`
	log.Debug("executing update query", "query", query, "registration_uuid", id)
	tag, err := r.pool.Exec(ctx, query, id, reason)
	if err != nil {
		log.Debug("failed to disqualify registration", "error", err)
		return fmt.Errorf("failed to disqualify registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("registration %s not found", id)
	}
	return nil
}

func (r *PgRegistry) Reinstate(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)
	query := `
		UPDATE registrations
		SET status = CASE WHEN status = 'disqualified' THEN 'confirmed' ELSE status END,
			disqualified_reason = NULL, updated_at = NOW()
		WHERE uuid = $1
	`
	log.Debug("executing update query", "query", query, "registration_uuid", id)
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reinstate registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("registration %s not found", id)
	}
	return nil
}

// Put inserts or replaces a registration. Used by tooling and tests;
// the enrollment service owns the table in production.
func (r *PgRegistry) Put(ctx context.Context, reg Registration) error {
	query := `
		INSERT INTO registrations (uuid, exam_id, user_uuid, status, disqualified_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (uuid) DO UPDATE SET
			exam_id = EXCLUDED.exam_id,
			user_uuid = EXCLUDED.user_uuid,
			status = EXCLUDED.status,
			disqualified_reason = EXCLUDED.disqualified_reason,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query, reg.UUID, reg.ExamID, reg.UserUUID, reg.Status, reg.DisqualifiedReason)
	if err != nil {
		return fmt.Errorf("failed to store registration: %w", err)
	}
	return nil
}

func (r *PgRegistry) Get(ctx context.Context, id uuid.UUID) (Registration, error) {
	query := `
		SELECT uuid, exam_id, user_uuid, status, disqualified_reason, updated_at
		FROM registrations WHERE uuid = $1
	`
	var reg Registration
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&reg.UUID, &reg.ExamID, &reg.UserUUID, &reg.Status, &reg.DisqualifiedReason, &reg.UpdatedAt)
	if err != nil {
		return Registration{}, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}
