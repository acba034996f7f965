package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/programme-lv/proctor/logger"
)

// PgLockRepo relies on the partial unique index device_locks_one_active
// to let exactly one active lock exist per attempt.
type PgLockRepo struct {
	pool *pgxpool.Pool
}

func NewPgLockRepo(pool *pgxpool.Pool) *PgLockRepo {
	return &PgLockRepo{pool: pool}
}

func (r *PgLockRepo) AcquireLock(ctx context.Context, attemptUUID uuid.UUID, deviceUUID uuid.UUID, now time.Time) (Lock, error) {
	log := logger.FromContext(ctx)
	log.Debug("acquiring device lock", "attempt_uuid", attemptUUID, "device_uuid", deviceUUID)

	insertQuery := `
		INSERT INTO device_locks (uuid, attempt_uuid, device_uuid, status, locked_at)
		VALUES ($1, $2, $3, 'active', $4)
		ON CONFLICT (attempt_uuid) WHERE status = 'active' DO NOTHING
	`
	_, err := r.pool.Exec(ctx, insertQuery, uuid.New(), attemptUUID, deviceUUID, now)
	if err != nil {
		log.Debug("failed to insert device lock", "error", err)
		return Lock{}, fmt.Errorf("failed to insert device lock: %w", err)
	}

	active, err := r.GetActiveLock(ctx, attemptUUID)
	if err != nil {
		return Lock{}, err
	}
	if active == nil {
		// released between insert and select
		return Lock{}, ErrDeviceConflict()
	}
	if active.DeviceUUID != deviceUUID {
		log.Debug("device lock held by another device", "holder", active.DeviceUUID)
		return Lock{}, ErrDeviceConflict()
	}
	return *active, nil
}

func (r *PgLockRepo) GetActiveLock(ctx context.Context, attemptUUID uuid.UUID) (*Lock, error) {
	query := `
		SELECT uuid, attempt_uuid, device_uuid, status, locked_at, released_at
		FROM device_locks
		WHERE attempt_uuid = $1 AND status = 'active'
	`
	var l Lock
	err := r.pool.QueryRow(ctx, query, attemptUUID).Scan(
		&l.UUID,
		&l.AttemptUUID,
		&l.DeviceUUID,
		&l.Status,
		&l.LockedAt,
		&l.ReleasedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query device lock: %w", err)
	}
	return &l, nil
}

func (r *PgLockRepo) ReleaseLock(ctx context.Context, attemptUUID uuid.UUID, status LockStatus, now time.Time) error {
	logger.FromContext(ctx).Debug("releasing device lock", "attempt_uuid", attemptUUID, "status", status)
	query := `
		UPDATE device_locks
		SET status = $1, released_at = $2
		WHERE attempt_uuid = $3 AND status = 'active'
	`
	_, err := r.pool.Exec(ctx, query, status, now, attemptUUID)
	if err != nil {
		return fmt.Errorf("failed to release device lock: %w", err)
	}
	return nil
}
