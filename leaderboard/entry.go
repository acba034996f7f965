// Package leaderboard ranks the scored attempts of an exam. The board
// is a projection of attempt records: it is rebuilt in full from them
// and never edited on its own.
package leaderboard

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Entry struct {
	ExamID      string
	AttemptUUID uuid.UUID
	UserUUID    uuid.UUID
	Status      attempt.Status

	RawScore      decimal.Decimal
	WeightedScore decimal.Decimal
	MaxScore      decimal.Decimal
	ScorePercent  decimal.Decimal
	// TimeSpentSec is nil for attempts without a completion time; those
	// rank after every equal score with a time.
	TimeSpentSec *int

	Rank       *int
	PrevRank   *int
	RankChange int // PrevRank - Rank, positive when moving up
	Percentile *decimal.Decimal

	Disqualified bool
	UpdatedAt    time.Time
}

// onBoard reports whether an attempt appears on the leaderboard at all.
func onBoard(s attempt.Status) bool {
	return s.IsScored() || s == attempt.StatusDisqualified
}

// Project builds unranked entries from attempts. Ranks of prev carry
// over into PrevRank.
func Project(attempts []attempt.Attempt, prev []Entry, now time.Time) []Entry {
	prevRanks := make(map[uuid.UUID]*int, len(prev))
	for _, e := range prev {
		prevRanks[e.AttemptUUID] = e.Rank
	}
	res := make([]Entry, 0, len(attempts))
	for i := range attempts {
		a := &attempts[i]
		if !onBoard(a.Status) {
			continue
		}
		res = append(res, Entry{
			ExamID:        a.ExamID,
			AttemptUUID:   a.UUID,
			UserUUID:      a.UserUUID,
			Status:        a.Status,
			RawScore:      a.RawScore,
			WeightedScore: a.WeightedScore,
			MaxScore:      a.MaxScore,
			ScorePercent:  a.ScorePercent,
			TimeSpentSec:  a.TimeSpentSec(),
			PrevRank:      prevRanks[a.UUID],
			Disqualified:  a.IsDisqualified,
			UpdatedAt:     now,
		})
	}
	return res
}

func compareTime(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(*a, *b)
}

// compareEntries orders by weighted score descending, then time
// ascending. Disqualified entries go last.
func compareEntries(a, b Entry) int {
	if a.Disqualified != b.Disqualified {
		if a.Disqualified {
			return 1
		}
		return -1
	}
	if c := b.WeightedScore.Cmp(a.WeightedScore); c != 0 {
		return c
	}
	return compareTime(a.TimeSpentSec, b.TimeSpentSec)
}

// Rank sorts entries and assigns competition ranks: equal
// (weighted score, time) pairs share a rank and the next distinct entry
// is ranked one past the number of entries above it. Disqualified
// entries stay on the board without a rank.
//
// Percentile is the share of ranked entries placed at or below the
// entry, so the leader is at 100.
func Rank(entries []Entry) []Entry {
	res := slices.Clone(entries)
	slices.SortStableFunc(res, func(a, b Entry) int {
		if c := compareEntries(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.AttemptUUID.String(), b.AttemptUUID.String())
	})

	ranked := 0
	for _, e := range res {
		if !e.Disqualified {
			ranked++
		}
	}

	for i := range res {
		e := &res[i]
		e.Rank = nil
		e.Percentile = nil
		e.RankChange = 0
		if e.Disqualified {
			continue
		}
		rank := i + 1
		if i > 0 && compareEntries(res[i-1], *e) == 0 {
			rank = *res[i-1].Rank
		}
		e.Rank = &rank
		if e.PrevRank != nil {
			e.RankChange = *e.PrevRank - rank
		}
		pct := decimal.NewFromInt(int64(ranked - rank + 1)).
			Div(decimal.NewFromInt(int64(ranked))).
			Mul(hundred)
		e.Percentile = &pct
	}
	return res
}

// Build is Project followed by Rank.
func Build(attempts []attempt.Attempt, prev []Entry, now time.Time) []Entry {
	return Rank(Project(attempts, prev, now))
}

// RankUpdates mirrors placements back onto attempt records.
func RankUpdates(entries []Entry) []attempt.RankUpdate {
	res := make([]attempt.RankUpdate, 0, len(entries))
	for _, e := range entries {
		res = append(res, attempt.RankUpdate{
			AttemptUUID: e.AttemptUUID,
			Rank:        e.Rank,
			Percentile:  e.Percentile,
		})
	}
	return res
}
