package appeal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/programme-lv/proctor/logger"
	"github.com/programme-lv/proctor/violation"
)

type PgRepo struct {
	pool *pgxpool.Pool
}

func NewPgRepo(pool *pgxpool.Pool) *PgRepo {
	return &PgRepo{pool: pool}
}

const appealColumns = `
	uuid, attempt_uuid, violation_uuid, user_uuid, reason, evidence, evidence_key,
	status, deadline, resolution, resolution_note, reviewer_uuid, created_at, resolved_at
`

func scanAppeal(row pgx.Row) (Appeal, error) {
	var a Appeal
	var resolution *string
	err := row.Scan(
		&a.UUID, &a.AttemptUUID, &a.ViolationUUID, &a.UserUUID, &a.Reason, &a.Evidence, &a.EvidenceKey,
		&a.Status, &a.Deadline, &resolution, &a.ResolutionNote, &a.ReviewerUUID, &a.CreatedAt, &a.ResolvedAt,
	)
	if err != nil {
		return Appeal{}, err
	}
	if resolution != nil {
		r := violation.Resolution(*resolution)
		a.Resolution = &r
	}
	return a, nil
}

func (r *PgRepo) GetAppeal(ctx context.Context, id uuid.UUID) (*Appeal, error) {
	log := logger.FromContext(ctx)
	query := `SELECT ` + appealColumns + ` FROM appeals WHERE uuid = $1`
	log.Debug("executing appeal query", "query", query, "appeal_uuid", id)

	a, err := scanAppeal(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appeal: %w", err)
	}
	return &a, nil
}

func (r *PgRepo) SaveAppeal(ctx context.Context, a Appeal) error {
	log := logger.FromContext(ctx)
	query := `
		INSERT INTO appeals (
			uuid, attempt_uuid, violation_uuid, user_uuid, reason, evidence, evidence_key,
			status, deadline, resolution, resolution_note, reviewer_uuid, created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (uuid) DO UPDATE SET
			evidence_key = EXCLUDED.evidence_key,
			status = EXCLUDED.status,
			resolution = EXCLUDED.resolution,
			resolution_note = EXCLUDED.resolution_note,
			reviewer_uuid = EXCLUDED.reviewer_uuid,
			resolved_at = EXCLUDED.resolved_at
	`
	log.Debug("executing appeal upsert", "query", query, "appeal_uuid", a.UUID)

	var resolution *string
	if a.Resolution != nil {
		s := string(*a.Resolution)
		resolution = &s
	}
	_, err := r.pool.Exec(ctx, query,
		a.UUID, a.AttemptUUID, a.ViolationUUID, a.UserUUID, a.Reason, a.Evidence, a.EvidenceKey,
		string(a.Status), a.Deadline, resolution, a.ResolutionNote, a.ReviewerUUID, a.CreatedAt, a.ResolvedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrOpenAppealExists
	}
	if err != nil {
		return fmt.Errorf("failed to store appeal: %w", err)
	}
	return nil
}

func (r *PgRepo) ListAttemptAppeals(ctx context.Context, attemptUUID uuid.UUID) ([]Appeal, error) {
	return r.list(ctx, `attempt_uuid = $1`, attemptUUID)
}

func (r *PgRepo) ListOpen(ctx context.Context) ([]Appeal, error) {
	return r.list(ctx, `status IN ('pending', 'under_review')`)
}

func (r *PgRepo) list(ctx context.Context, where string, args ...any) ([]Appeal, error) {
	query := `SELECT ` + appealColumns + ` FROM appeals WHERE ` + where + ` ORDER BY created_at, uuid`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appeals: %w", err)
	}
	res, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Appeal, error) {
		return scanAppeal(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan appeals: %w", err)
	}
	return res, nil
}
