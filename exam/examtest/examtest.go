// Package examtest provides exam definitions for tests.
package examtest

import "github.com/programme-lv/proctor/exam"

const ExamID = "olymp-r1"

// TwoSections is a 3 hour exam with a 100 point quiz weighted 20% and
// a 400 point programming section weighted 80%.
func TwoSections() exam.Exam {
	pi := 3.14
	return exam.Exam{
		ID:               ExamID,
		Title:            "Olympiad round 1",
		TotalDurationMin: 180,
		Sections: []exam.Section{
			{
				ID:             "quiz",
				Type:           exam.SectionTypeTest,
				Order:          1,
				DurationMin:    60,
				MaxPoints:      100,
				WeightPercent:  20,
				PassingPercent: 50,
				Questions: []exam.Question{
					{ID: "q1", Type: exam.QuestionSingleChoice, MaxPoints: 40, Correct: []string{"b"}},
					{ID: "q2", Type: exam.QuestionNumeric, MaxPoints: 60, NumericAnswer: &pi, Tolerance: 0.01},
				},
			},
			{
				ID:             "code",
				Type:           exam.SectionTypeCoding,
				Order:          2,
				DurationMin:    120,
				MaxPoints:      400,
				WeightPercent:  80,
				PassingPercent: 25,
				Questions: []exam.Question{
					{ID: "aplusb", Type: exam.QuestionCode, MaxPoints: 400, TestCases: []exam.TestCase{
						{Input: "1 2\n", Answer: "3\n"},
						{Input: "5 7\n", Answer: "12\n"},
					}},
				},
			},
		},
		AntiCheat: exam.DefaultAntiCheat(),
	}
}

// WithEssay appends a manually graded writing section to TwoSections.
func WithEssay() exam.Exam {
	e := TwoSections()
	e.ID = "olymp-r2"
	e.Sections = append(e.Sections, exam.Section{
		ID:             "essay",
		Type:           exam.SectionTypeWriting,
		Order:          3,
		MaxPoints:      50,
		WeightPercent:  0,
		PassingPercent: 0,
		Questions: []exam.Question{
			{ID: "e1", Type: exam.QuestionEssay, MaxPoints: 50},
		},
	})
	return e
}
