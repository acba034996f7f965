package attemptsrvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/judge"
	"github.com/programme-lv/proctor/logger"
	"github.com/programme-lv/proctor/scoring"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type attemptScorer struct {
	evaluate func(ctx context.Context, req judge.Request) (judge.Result, error)
	now      func() time.Time
}

// score grades every answer that has no grade yet and recomputes section
// and attempt totals. Sections are scored in parallel and the results
// are applied only if all of them succeed. Otherwise totals are zeroed,
// the failing sections wait for manual grading and deferred is true.
func (s attemptScorer) score(ctx context.Context, a *attempt.Attempt, ex exam.Exam) (deferred bool) {
	scored := make([]attempt.SectionAttempt, len(a.Sections))
	failed := make([]bool, len(a.Sections))

	var g errgroup.Group
	for i := range a.Sections {
		sa := a.Sections[i].Clone()
		g.Go(func() error {
			def, ok := ex.Section(sa.SectionID)
			if !ok {
				failed[i] = true
				return fmt.Errorf("section %s is not configured", sa.SectionID)
			}
			if err := s.scoreSection(ctx, &sa, def); err != nil {
				failed[i] = true
				return fmt.Errorf("section %s: %w", sa.SectionID, err)
			}
			scored[i] = sa
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.FromContext(ctx).Warn("scoring deferred to manual grading", "error", err)
		for i := range a.Sections {
			if failed[i] {
				a.Sections[i].RequiresManualGrading = true
				a.Sections[i].Status = attempt.SectionGrading
			}
		}
		a.RawScore = decimal.Zero
		a.WeightedScore = decimal.Zero
		a.MaxScore = decimal.Zero
		a.ScorePercent = decimal.Zero
		a.RequiresManualGrading = true
		return true
	}

	a.Sections = scored
	scores := make([]scoring.SectionScore, 0, len(scored))
	for _, sa := range scored {
		scores = append(scores, scoring.SectionScore{
			Raw:      sa.RawScore,
			Weighted: sa.WeightedScore,
			Max:      sa.MaxScore,
			Percent:  sa.ScorePercent,
			Passed:   sa.Passed,
		})
	}
	totals := scoring.Aggregate(scores)
	a.RawScore = totals.Raw
	a.WeightedScore = totals.Weighted
	a.MaxScore = totals.Max
	a.ScorePercent = totals.Percent
	return false
}

func (s attemptScorer) scoreSection(ctx context.Context, sa *attempt.SectionAttempt, def exam.Section) error {
	now := s.now()
	points := make([]decimal.Decimal, 0, len(sa.Answers))
	sa.CorrectCount = 0
	sa.RequiresManualGrading = false

	for j := range sa.Answers {
		ans := &sa.Answers[j]
		q, ok := def.Question(ans.QuestionID)
		if !ok {
			return fmt.Errorf("question %s is not configured", ans.QuestionID)
		}
		if !ans.Graded {
			if err := s.grade(ctx, ans, q, now); err != nil {
				return err
			}
		}
		if !ans.Graded {
			sa.RequiresManualGrading = true
			continue
		}
		points = append(points, ans.PointsEarned)
		if ans.IsCorrect != nil && *ans.IsCorrect {
			sa.CorrectCount++
		}
	}

	res := scoring.CalculateSectionScore(scoring.SectionInput{
		MaxPoints:      def.MaxPointsDec(),
		WeightPercent:  def.WeightDec(),
		PassingPercent: def.PassingDec(),
		Points:         points,
	})
	sa.RawScore = res.Raw
	sa.WeightedScore = res.Weighted
	sa.MaxScore = res.Max
	sa.ScorePercent = res.Percent
	sa.Passed = res.Passed
	sa.AnsweredCount = len(sa.Answers)
	if sa.RequiresManualGrading {
		sa.Status = attempt.SectionGrading
	} else {
		sa.Status = attempt.SectionGraded
	}
	return nil
}

// grade leaves answers that need a person ungraded.
func (s attemptScorer) grade(ctx context.Context, ans *attempt.Answer, q exam.Question, now time.Time) error {
	switch {
	case q.Type.NeedsManualGrading():
		ans.RequiresManualGrading = true
		return nil
	case q.Type == exam.QuestionCode:
		points, correct, err := s.judgeCode(ctx, q, ans.Payload)
		if err != nil {
			return fmt.Errorf("failed to judge question %s: %w", q.ID, err)
		}
		ans.PointsEarned = points
		ans.IsCorrect = &correct
	default:
		g, err := scoring.GradeObjective(q, ans.Payload)
		if err != nil {
			return err
		}
		ans.PointsEarned = g.Points
		ans.IsCorrect = &g.Correct
	}
	ans.Graded = true
	ans.GradedAt = &now
	return nil
}

func (s attemptScorer) judgeCode(ctx context.Context, q exam.Question, payload json.RawMessage) (decimal.Decimal, bool, error) {
	var code scoring.CodePayload
	if json.Unmarshal(payload, &code) != nil || code.Source == "" {
		return decimal.Zero, false, nil
	}
	tests := make([]judge.TestCase, 0, len(q.TestCases))
	for _, tc := range q.TestCases {
		tests = append(tests, judge.TestCase{Input: tc.Input, Answer: tc.Answer})
	}
	res, err := s.evaluate(ctx, judge.Request{
		Language:  code.Language,
		Source:    code.Source,
		TestCases: tests,
	})
	if err != nil {
		return decimal.Zero, false, err
	}
	points := scoring.PointsForTests(q.MaxPointsDec(), res.PassedCount, res.TotalCount)
	return points, res.TotalCount > 0 && res.PassedCount >= res.TotalCount, nil
}
