package exam

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type SectionType string

const (
	SectionTypeTest      SectionType = "test"
	SectionTypeCoding    SectionType = "coding"
	SectionTypeListening SectionType = "listening"
	SectionTypeReading   SectionType = "reading"
	SectionTypeWriting   SectionType = "writing"
)

type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionNumeric        QuestionType = "numeric"
	QuestionShortText      QuestionType = "short_text"
	QuestionEssay          QuestionType = "essay"
	QuestionCode           QuestionType = "code"
)

// NeedsManualGrading is true for question types no automatic grader can score.
func (t QuestionType) NeedsManualGrading() bool {
	return t == QuestionEssay
}

// Exam is the read-only definition of one competitive assessment.
type Exam struct {
	ID               string    `toml:"id" validate:"required"`
	Title            string    `toml:"title"`
	TotalDurationMin int       `toml:"total_duration_minutes" validate:"gt=0"`
	Sections         []Section `toml:"sections" validate:"dive"`
	AntiCheat        AntiCheat `toml:"-"`
}

type Section struct {
	ID             string      `toml:"id" validate:"required"`
	Title          string      `toml:"title"`
	Type           SectionType `toml:"type" validate:"oneof=test coding listening reading writing"`
	Order          int         `toml:"order"`
	DurationMin    int         `toml:"duration_minutes" validate:"gte=0"`
	MaxPoints      float64     `toml:"max_points" validate:"gte=0"`
	WeightPercent  float64     `toml:"weight_percent" validate:"gte=0,lte=100"`
	PassingPercent float64     `toml:"passing_percent" validate:"gte=0,lte=100"`
	Questions      []Question  `toml:"questions" validate:"dive"`
}

type Question struct {
	ID        string       `toml:"id" validate:"required"`
	Type      QuestionType `toml:"type" validate:"oneof=single_choice multiple_choice numeric short_text essay code"`
	MaxPoints float64      `toml:"max_points" validate:"gte=0"`

	// single / multiple choice
	Correct []string `toml:"correct"`
	// numeric
	NumericAnswer *float64 `toml:"numeric_answer"`
	Tolerance     float64  `toml:"tolerance" validate:"gte=0"`
	// short text, compared case-insensitively after trimming
	Accepted []string `toml:"accepted"`
	// code
	TestCases []TestCase `toml:"test_cases"`
}

type TestCase struct {
	Input  string `toml:"input" json:"input"`
	Answer string `toml:"answer" json:"answer"`
}

func (e Exam) TotalDuration() time.Duration {
	return time.Duration(e.TotalDurationMin) * time.Minute
}

// OrderedSections returns sections sorted by their configured order,
// falling back to declaration order on equal values.
func (e Exam) OrderedSections() []Section {
	res := slices.Clone(e.Sections)
	slices.SortStableFunc(res, func(a, b Section) int {
		return a.Order - b.Order
	})
	return res
}

func (e Exam) Section(id string) (Section, bool) {
	for _, s := range e.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

func (s Section) Question(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

func (s Section) Duration() time.Duration {
	return time.Duration(s.DurationMin) * time.Minute
}

func (s Section) MaxPointsDec() decimal.Decimal {
	return decimal.NewFromFloat(s.MaxPoints)
}

func (s Section) WeightDec() decimal.Decimal {
	return decimal.NewFromFloat(s.WeightPercent)
}

func (s Section) PassingDec() decimal.Decimal {
	return decimal.NewFromFloat(s.PassingPercent)
}

func (q Question) MaxPointsDec() decimal.Decimal {
	return decimal.NewFromFloat(q.MaxPoints)
}
