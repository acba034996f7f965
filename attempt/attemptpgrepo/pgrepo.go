// Package attemptpgrepo stores attempts, their sections, answers and
// violations in Postgres.
//
// NUMERIC columns travel as text in both directions so that decimals
// keep their exact value.
package attemptpgrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/logger"
	"github.com/programme-lv/proctor/violation"
	"github.com/shopspring/decimal"
)

const pgUniqueViolation = "23505"

type PgAttemptRepo struct {
	pool *pgxpool.Pool
}

func NewPgAttemptRepo(pool *pgxpool.Pool) *PgAttemptRepo {
	return &PgAttemptRepo{pool: pool}
}

var _ attempt.Repo = (*PgAttemptRepo)(nil)

const attemptColumns = `
	uuid, exam_id, user_uuid, registration_uuid, session_token, status,
	started_at, completed_at, curr_section_idx,
	raw_score::text, weighted_score::text, max_score::text, score_percent::text,
	tab_switches, fullscreen_exits, heartbeat_misses, warnings,
	is_disqualified, disqualified_reason, disqualified_at, disqualification_snapshot,
	rank, percentile::text, requires_manual_grading, last_heartbeat_at,
	version, created_at
`

func (r *PgAttemptRepo) SaveAttempt(ctx context.Context, a *attempt.Attempt, vs ...violation.Violation) error {
	log := logger.FromContext(ctx)
	log.Debug("storing attempt", "attempt_uuid", a.UUID, "version", a.Version)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var snapshot []byte
	if a.DisqualificationSnapshot != nil {
		snapshot, err = json.Marshal(a.DisqualificationSnapshot)
		if err != nil {
			return fmt.Errorf("failed to marshal disqualification snapshot: %w", err)
		}
	}

	// The conflict branch only fires when the stored version is the one
	// the caller read; a fresh attempt (version 0) never overwrites.
	upsertQuery := `
		INSERT INTO attempts (
			uuid, exam_id, user_uuid, registration_uuid, session_token, status,
			started_at, completed_at, curr_section_idx,
			raw_score, weighted_score, max_score, score_percent,
			tab_switches, fullscreen_exits, heartbeat_misses, warnings,
			is_disqualified, disqualified_reason, disqualified_at, disqualification_snapshot,
			rank, percentile, requires_manual_grading, last_heartbeat_at,
			version, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10::numeric, $11::numeric, $12::numeric, $13::numeric,
			$14, $15, $16, $17, $18, $19, $20, $21,
			$22, $23::numeric, $24, $25, $26, $27
		)
		ON CONFLICT (uuid) DO UPDATE SET
			session_token = EXCLUDED.session_token,
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			curr_section_idx = EXCLUDED.curr_section_idx,
			raw_score = EXCLUDED.raw_score,
			weighted_score = EXCLUDED.weighted_score,
			max_score = EXCLUDED.max_score,
			score_percent = EXCLUDED.score_percent,
			tab_switches = EXCLUDED.tab_switches,
			fullscreen_exits = EXCLUDED.fullscreen_exits,
			heartbeat_misses = EXCLUDED.heartbeat_misses,
			warnings = EXCLUDED.warnings,
			is_disqualified = EXCLUDED.is_disqualified,
			disqualified_reason = EXCLUDED.disqualified_reason,
			disqualified_at = EXCLUDED.disqualified_at,
			disqualification_snapshot = EXCLUDED.disqualification_snapshot,
			rank = EXCLUDED.rank,
			percentile = EXCLUDED.percentile,
			requires_manual_grading = EXCLUDED.requires_manual_grading,
			last_heartbeat_at = EXCLUDED.last_heartbeat_at,
			version = EXCLUDED.version
		WHERE attempts.version = $28
	`
	tag, err := tx.Exec(ctx, upsertQuery,
		a.UUID,
		a.ExamID,
		a.UserUUID,
		a.RegistrationID,
		a.SessionToken,
		string(a.Status),
		a.StartedAt,
		a.CompletedAt,
		a.CurrSectionIdx,
		a.RawScore.String(),
		a.WeightedScore.String(),
		a.MaxScore.String(),
		a.ScorePercent.String(),
		a.TabSwitches,
		a.FullscreenExits,
		a.HeartbeatMisses,
		a.Warnings,
		a.IsDisqualified,
		a.DisqualifiedReason,
		a.DisqualifiedAt,
		snapshot,
		a.Rank,
		decimalText(a.Percentile),
		a.RequiresManualGrading,
		a.LastHeartbeatAt,
		a.Version+1,
		a.CreatedAt,
		a.Version,
	)
	if isUniqueViolation(err) {
		return attempt.ErrVersionConflict
	}
	if err != nil {
		log.Debug("failed to upsert attempt", "error", err)
		return fmt.Errorf("failed to upsert attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		log.Debug("attempt version moved", "expected", a.Version)
		return attempt.ErrVersionConflict
	}

	// sections and answers are rewritten as a whole; deleting the
	// sections cascades to their answers
	if _, err := tx.Exec(ctx, `DELETE FROM section_attempts WHERE attempt_uuid = $1`, a.UUID); err != nil {
		return fmt.Errorf("failed to delete section attempts: %w", err)
	}
	batch := &pgx.Batch{}
	for _, s := range a.Sections {
		queueSection(batch, a.UUID, s)
	}
	for _, v := range vs {
		queueViolation(batch, v)
	}
	if batch.Len() > 0 {
		log.Debug("writing attempt children", "statements", batch.Len())
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if isUniqueViolation(err) {
				return attempt.ErrVersionConflict
			}
			return fmt.Errorf("failed to write sections and violations: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	a.Version++
	return nil
}

func queueSection(batch *pgx.Batch, attemptUUID uuid.UUID, s attempt.SectionAttempt) {
	batch.Queue(`
		INSERT INTO section_attempts (
			uuid, attempt_uuid, section_id, section_type, ord, status,
			started_at, completed_at, duration_used_sec,
			raw_score, weighted_score, max_score, score_percent, passed,
			answered_count, correct_count, requires_manual_grading
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10::numeric, $11::numeric, $12::numeric, $13::numeric,
			$14, $15, $16, $17
		)`,
		s.UUID,
		attemptUUID,
		s.SectionID,
		string(s.SectionType),
		s.Order,
		string(s.Status),
		s.StartedAt,
		s.CompletedAt,
		s.DurationUsedSec,
		s.RawScore.String(),
		s.WeightedScore.String(),
		s.MaxScore.String(),
		s.ScorePercent.String(),
		s.Passed,
		s.AnsweredCount,
		s.CorrectCount,
		s.RequiresManualGrading,
	)
	for _, ans := range s.Answers {
		var payload []byte
		if len(ans.Payload) > 0 {
			payload = ans.Payload
		}
		batch.Queue(`
			INSERT INTO answers (
				uuid, section_attempt_uuid, question_id, payload, is_correct,
				points_earned, max_points, time_spent_sec, flagged_for_review,
				requires_manual_grading, graded, graded_at, submitted_at
			) VALUES (
				$1, $2, $3, $4, $5, $6::numeric, $7::numeric,
				$8, $9, $10, $11, $12, $13
			)`,
			ans.UUID,
			s.UUID,
			ans.QuestionID,
			payload,
			ans.IsCorrect,
			ans.PointsEarned.String(),
			ans.MaxPoints.String(),
			ans.TimeSpentSec,
			ans.FlaggedForReview,
			ans.RequiresManualGrading,
			ans.Graded,
			ans.GradedAt,
			ans.SubmittedAt,
		)
	}
}

func (r *PgAttemptRepo) GetAttempt(ctx context.Context, id uuid.UUID) (*attempt.Attempt, error) {
	log := logger.FromContext(ctx)
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE uuid = $1`
	log.Debug("executing attempt query", "query", query, "attempt_uuid", id)

	a, err := scanAttempt(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Debug("failed to get attempt", "error", err)
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	sections, err := r.loadSections(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	a.Sections = sections[id]
	if err := r.loadAnswers(ctx, id, a.Sections); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PgAttemptRepo) ListExamAttempts(ctx context.Context, examID string) ([]attempt.Attempt, error) {
	return r.listAttempts(ctx, `exam_id = $1`, examID)
}

func (r *PgAttemptRepo) ListInProgress(ctx context.Context, examID string) ([]attempt.Attempt, error) {
	return r.listAttempts(ctx, `status = 'in_progress' AND ($1 = '' OR exam_id = $1)`, examID)
}

func (r *PgAttemptRepo) listAttempts(ctx context.Context, where string, args ...any) ([]attempt.Attempt, error) {
	log := logger.FromContext(ctx)
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE ` + where + ` ORDER BY created_at, uuid`
	log.Debug("executing attempt list query", "query", query)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	res, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (attempt.Attempt, error) {
		return scanAttempt(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan attempts: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(res))
	for _, a := range res {
		ids = append(ids, a.UUID)
	}
	sections, err := r.loadSections(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Sections = sections[res[i].UUID]
	}
	return res, nil
}

func (r *PgAttemptRepo) loadSections(ctx context.Context, attemptUUIDs []uuid.UUID) (map[uuid.UUID][]attempt.SectionAttempt, error) {
	res := map[uuid.UUID][]attempt.SectionAttempt{}
	if len(attemptUUIDs) == 0 {
		return res, nil
	}
	query := `
		SELECT uuid, attempt_uuid, section_id, section_type, ord, status,
			started_at, completed_at, duration_used_sec,
			raw_score::text, weighted_score::text, max_score::text, score_percent::text,
			passed, answered_count, correct_count, requires_manual_grading
		FROM section_attempts
		WHERE attempt_uuid = ANY($1)
		ORDER BY attempt_uuid, ord
	`
	rows, err := r.pool.Query(ctx, query, attemptUUIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query section attempts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s attempt.SectionAttempt
		var raw, weighted, max, percent string
		err := rows.Scan(
			&s.UUID, &s.AttemptUUID, &s.SectionID, &s.SectionType, &s.Order, &s.Status,
			&s.StartedAt, &s.CompletedAt, &s.DurationUsedSec,
			&raw, &weighted, &max, &percent,
			&s.Passed, &s.AnsweredCount, &s.CorrectCount, &s.RequiresManualGrading,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan section attempt: %w", err)
		}
		if err := parseDecimals(
			decimalField{raw, &s.RawScore},
			decimalField{weighted, &s.WeightedScore},
			decimalField{max, &s.MaxScore},
			decimalField{percent, &s.ScorePercent},
		); err != nil {
			return nil, err
		}
		res[s.AttemptUUID] = append(res[s.AttemptUUID], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate section attempts: %w", err)
	}
	return res, nil
}

func (r *PgAttemptRepo) loadAnswers(ctx context.Context, attemptUUID uuid.UUID, sections []attempt.SectionAttempt) error {
	bySection := map[uuid.UUID]*attempt.SectionAttempt{}
	for i := range sections {
		bySection[sections[i].UUID] = &sections[i]
	}
	query := `
		SELECT a.uuid, a.section_attempt_uuid, a.question_id, a.payload, a.is_correct,
			a.points_earned::text, a.max_points::text, a.time_spent_sec,
			a.flagged_for_review, a.requires_manual_grading, a.graded,
			a.graded_at, a.submitted_at
		FROM answers a
		JOIN section_attempts s ON s.uuid = a.section_attempt_uuid
		WHERE s.attempt_uuid = $1
		ORDER BY a.submitted_at, a.uuid
	`
	rows, err := r.pool.Query(ctx, query, attemptUUID)
	if err != nil {
		return fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ans attempt.Answer
		var sectionUUID uuid.UUID
		var payload []byte
		var points, max string
		err := rows.Scan(
			&ans.UUID, &sectionUUID, &ans.QuestionID, &payload, &ans.IsCorrect,
			&points, &max, &ans.TimeSpentSec,
			&ans.FlaggedForReview, &ans.RequiresManualGrading, &ans.Graded,
			&ans.GradedAt, &ans.SubmittedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan answer: %w", err)
		}
		if payload != nil {
			ans.Payload = json.RawMessage(payload)
		}
		if err := parseDecimals(
			decimalField{points, &ans.PointsEarned},
			decimalField{max, &ans.MaxPoints},
		); err != nil {
			return err
		}
		s, ok := bySection[sectionUUID]
		if !ok {
			return fmt.Errorf("answer %s belongs to unknown section %s", ans.UUID, sectionUUID)
		}
		s.Answers = append(s.Answers, ans)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate answers: %w", err)
	}
	return nil
}

func (r *PgAttemptRepo) SetRanks(ctx context.Context, ranks []attempt.RankUpdate) error {
	if len(ranks) == 0 {
		return nil
	}
	log := logger.FromContext(ctx)
	log.Debug("writing attempt ranks", "count", len(ranks))

	batch := &pgx.Batch{}
	for _, rk := range ranks {
		batch.Queue(`UPDATE attempts SET rank = $2, percentile = $3::numeric WHERE uuid = $1`,
			rk.AttemptUUID, rk.Rank, decimalText(rk.Percentile))
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to write ranks: %w", err)
	}
	return nil
}

func scanAttempt(row pgx.Row) (attempt.Attempt, error) {
	var a attempt.Attempt
	var raw, weighted, max, percent string
	var percentile *string
	var snapshot []byte
	err := row.Scan(
		&a.UUID, &a.ExamID, &a.UserUUID, &a.RegistrationID, &a.SessionToken, &a.Status,
		&a.StartedAt, &a.CompletedAt, &a.CurrSectionIdx,
		&raw, &weighted, &max, &percent,
		&a.TabSwitches, &a.FullscreenExits, &a.HeartbeatMisses, &a.Warnings,
		&a.IsDisqualified, &a.DisqualifiedReason, &a.DisqualifiedAt, &snapshot,
		&a.Rank, &percentile, &a.RequiresManualGrading, &a.LastHeartbeatAt,
		&a.Version, &a.CreatedAt,
	)
	if err != nil {
		return attempt.Attempt{}, err
	}
	if err := parseDecimals(
		decimalField{raw, &a.RawScore},
		decimalField{weighted, &a.WeightedScore},
		decimalField{max, &a.MaxScore},
		decimalField{percent, &a.ScorePercent},
	); err != nil {
		return attempt.Attempt{}, err
	}
	if percentile != nil {
		p, err := decimal.NewFromString(*percentile)
		if err != nil {
			return attempt.Attempt{}, fmt.Errorf("failed to parse percentile: %w", err)
		}
		a.Percentile = &p
	}
	if snapshot != nil {
		if err := json.Unmarshal(snapshot, &a.DisqualificationSnapshot); err != nil {
			return attempt.Attempt{}, fmt.Errorf("failed to unmarshal disqualification snapshot: %w", err)
		}
	}
	return a, nil
}

type decimalField struct {
	text string
	dst  *decimal.Decimal
}

func parseDecimals(fields ...decimalField) error {
	for _, f := range fields {
		d, err := decimal.NewFromString(f.text)
		if err != nil {
			return fmt.Errorf("failed to parse numeric %q: %w", f.text, err)
		}
		*f.dst = d
	}
	return nil
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
