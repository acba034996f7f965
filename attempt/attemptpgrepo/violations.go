package attemptpgrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/logger"
	"github.com/programme-lv/proctor/violation"
)

const violationColumns = `
	uuid, attempt_uuid, device_uuid, type, raw_type, count, severity, action,
	details, resolved, resolution, created_at, updated_at
`

const upsertViolationQuery = `
	INSERT INTO violations (
		uuid, attempt_uuid, device_uuid, type, raw_type, count, severity, action,
		details, resolved, resolution, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (uuid) DO UPDATE SET
		device_uuid = EXCLUDED.device_uuid,
		count = EXCLUDED.count,
		severity = EXCLUDED.severity,
		action = EXCLUDED.action,
		details = EXCLUDED.details,
		resolved = EXCLUDED.resolved,
		resolution = EXCLUDED.resolution,
		updated_at = EXCLUDED.updated_at
`

func violationArgs(v violation.Violation) []any {
	var resolution *string
	if v.Resolution != nil {
		s := string(*v.Resolution)
		resolution = &s
	}
	return []any{
		v.UUID,
		v.AttemptUUID,
		v.DeviceUUID,
		string(v.Type),
		v.RawType,
		v.Count,
		string(v.Severity),
		string(v.Action),
		v.Details,
		v.Resolved,
		resolution,
		v.CreatedAt,
		v.UpdatedAt,
	}
}

func queueViolation(batch *pgx.Batch, v violation.Violation) {
	batch.Queue(upsertViolationQuery, violationArgs(v)...)
}

func scanViolation(row pgx.Row) (violation.Violation, error) {
	var v violation.Violation
	var resolution *string
	err := row.Scan(
		&v.UUID, &v.AttemptUUID, &v.DeviceUUID, &v.Type, &v.RawType, &v.Count,
		&v.Severity, &v.Action, &v.Details, &v.Resolved, &resolution,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return violation.Violation{}, err
	}
	if resolution != nil {
		r := violation.Resolution(*resolution)
		v.Resolution = &r
	}
	return v, nil
}

func (r *PgAttemptRepo) getViolation(ctx context.Context, where string, args ...any) (*violation.Violation, error) {
	log := logger.FromContext(ctx)
	query := `SELECT ` + violationColumns + ` FROM violations WHERE ` + where
	log.Debug("executing violation query", "query", query)

	v, err := scanViolation(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get violation: %w", err)
	}
	return &v, nil
}

func (r *PgAttemptRepo) GetViolation(ctx context.Context, id uuid.UUID) (*violation.Violation, error) {
	return r.getViolation(ctx, `uuid = $1`, id)
}

func (r *PgAttemptRepo) FindViolation(ctx context.Context, attemptUUID uuid.UUID, t violation.Type) (*violation.Violation, error) {
	return r.getViolation(ctx, `attempt_uuid = $1 AND type = $2`, attemptUUID, string(t))
}

func (r *PgAttemptRepo) ListViolations(ctx context.Context, attemptUUID uuid.UUID) ([]violation.Violation, error) {
	query := `SELECT ` + violationColumns + ` FROM violations WHERE attempt_uuid = $1 ORDER BY created_at, uuid`
	rows, err := r.pool.Query(ctx, query, attemptUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	res, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (violation.Violation, error) {
		return scanViolation(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan violations: %w", err)
	}
	return res, nil
}

// SaveViolation stores a violation on its own, as appeal resolution does.
func (r *PgAttemptRepo) SaveViolation(ctx context.Context, v violation.Violation) error {
	_, err := r.pool.Exec(ctx, upsertViolationQuery, violationArgs(v)...)
	if isUniqueViolation(err) {
		return attempt.ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to store violation: %w", err)
	}
	return nil
}
