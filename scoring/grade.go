package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/programme-lv/proctor/exam"
	"github.com/shopspring/decimal"
)

type Grade struct {
	Points  decimal.Decimal
	Correct bool
}

// CodePayload is the answer shape of code questions.
type CodePayload struct {
	Language string `json:"language"`
	Source   string `json:"source"`
}

// GradeObjective scores answers to automatically gradable questions.
// Payload shapes: single_choice and short_text take a JSON string,
// multiple_choice a JSON array of strings, numeric a JSON number.
// Malformed payloads score zero instead of failing.
func GradeObjective(q exam.Question, payload json.RawMessage) (Grade, error) {
	wrong := Grade{Points: decimal.Zero}
	right := Grade{Points: q.MaxPointsDec(), Correct: true}

	switch q.Type {
	case exam.QuestionSingleChoice:
		var choice string
		if json.Unmarshal(payload, &choice) != nil {
			return wrong, nil
		}
		if len(q.Correct) > 0 && slices.Contains(q.Correct, choice) {
			return right, nil
		}
		return wrong, nil
	case exam.QuestionMultipleChoice:
		var choices []string
		if json.Unmarshal(payload, &choices) != nil {
			return wrong, nil
		}
		if sameSet(choices, q.Correct) {
			return right, nil
		}
		return wrong, nil
	case exam.QuestionNumeric:
		var value float64
		if json.Unmarshal(payload, &value) != nil || q.NumericAnswer == nil {
			return wrong, nil
		}
		if math.Abs(value-*q.NumericAnswer) <= q.Tolerance+1e-9 {
			return right, nil
		}
		return wrong, nil
	case exam.QuestionShortText:
		var text string
		if json.Unmarshal(payload, &text) != nil {
			return wrong, nil
		}
		norm := strings.ToLower(strings.TrimSpace(text))
		for _, acc := range q.Accepted {
			if norm == strings.ToLower(strings.TrimSpace(acc)) {
				return right, nil
			}
		}
		return wrong, nil
	}
	return Grade{}, fmt.Errorf("question type %s is not automatically gradable", q.Type)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}
