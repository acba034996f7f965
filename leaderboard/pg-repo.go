package leaderboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/programme-lv/proctor/logger"
	"github.com/shopspring/decimal"
)

// PgRepo serializes rebuilds of one exam across processes with a
// transaction scoped advisory lock on the exam id.
type PgRepo struct {
	pool *pgxpool.Pool
}

func NewPgRepo(pool *pgxpool.Pool) *PgRepo {
	return &PgRepo{pool: pool}
}

const entryColumns = `
	exam_id, attempt_uuid, user_uuid, status,
	raw_score::text, weighted_score::text, max_score::text, score_percent::text,
	time_spent_sec, rank, prev_rank, rank_change, percentile::text,
	disqualified, updated_at
`

func (r *PgRepo) Rebuild(ctx context.Context, examID string, build BuildFunc) ([]Entry, error) {
	log := logger.FromContext(ctx)
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	log.Debug("taking leaderboard lock", "exam_id", examID)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('leaderboard:' || $1))`, examID); err != nil {
		return nil, fmt.Errorf("failed to lock leaderboard: %w", err)
	}

	prev, err := listEntries(ctx, tx, examID)
	if err != nil {
		return nil, err
	}
	next, err := build(ctx, prev)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM leaderboard_entries WHERE exam_id = $1`, examID); err != nil {
		return nil, fmt.Errorf("failed to clear leaderboard: %w", err)
	}
	batch := &pgx.Batch{}
	for _, e := range next {
		var percentile *string
		if e.Percentile != nil {
			s := e.Percentile.String()
			percentile = &s
		}
		batch.Queue(`
			INSERT INTO leaderboard_entries (
				exam_id, attempt_uuid, user_uuid, status,
				raw_score, weighted_score, max_score, score_percent,
				time_spent_sec, rank, prev_rank, rank_change, percentile,
				disqualified, updated_at
			) VALUES (
				$1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric,
				$9, $10, $11, $12, $13::numeric, $14, $15
			)`,
			examID, e.AttemptUUID, e.UserUUID, string(e.Status),
			e.RawScore.String(), e.WeightedScore.String(), e.MaxScore.String(), e.ScorePercent.String(),
			e.TimeSpentSec, e.Rank, e.PrevRank, e.RankChange, percentile,
			e.Disqualified, e.UpdatedAt,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return nil, fmt.Errorf("failed to insert leaderboard entries: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit leaderboard: %w", err)
	}
	log.Debug("leaderboard rebuilt", "exam_id", examID, "entries", len(next))
	return next, nil
}

func (r *PgRepo) ListEntries(ctx context.Context, examID string) ([]Entry, error) {
	return listEntries(ctx, r.pool, examID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listEntries(ctx context.Context, q querier, examID string) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM leaderboard_entries
		WHERE exam_id = $1
		ORDER BY disqualified, rank NULLS LAST, attempt_uuid`
	rows, err := q.Query(ctx, query, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	res, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("failed to scan leaderboard: %w", err)
	}
	return res, nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var e Entry
	var raw, weighted, max, percent string
	var percentile *string
	err := row.Scan(
		&e.ExamID, &e.AttemptUUID, &e.UserUUID, &e.Status,
		&raw, &weighted, &max, &percent,
		&e.TimeSpentSec, &e.Rank, &e.PrevRank, &e.RankChange, &percentile,
		&e.Disqualified, &e.UpdatedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	for _, f := range []struct {
		text string
		dst  *decimal.Decimal
	}{{raw, &e.RawScore}, {weighted, &e.WeightedScore}, {max, &e.MaxScore}, {percent, &e.ScorePercent}} {
		d, err := decimal.NewFromString(f.text)
		if err != nil {
			return Entry{}, fmt.Errorf("failed to parse numeric %q: %w", f.text, err)
		}
		*f.dst = d
	}
	if percentile != nil {
		p, err := decimal.NewFromString(*percentile)
		if err != nil {
			return Entry{}, fmt.Errorf("failed to parse percentile: %w", err)
		}
		e.Percentile = &p
	}
	return e, nil
}
