package exam

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

type examToml struct {
	Exam
	AntiCheat antiCheatToml `toml:"anti_cheat"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseToml decodes one exam definition and validates it.
// Anti-cheat keys missing from the file fall back to defaults.
func ParseToml(content []byte) (Exam, error) {
	var parsed examToml
	dec := toml.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&parsed); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Exam{}, newErrInvalidExamConfig(fmt.Sprintf("line %d column %d: %s", row, col, derr.Error()))
		}
		return Exam{}, newErrInvalidExamConfig(err.Error())
	}

	if err := validate.Struct(parsed.AntiCheat); err != nil {
		return Exam{}, newErrInvalidExamConfig(err.Error())
	}

	e := parsed.Exam
	e.AntiCheat = parsed.AntiCheat.resolve()

	if err := Validate(e); err != nil {
		return Exam{}, err
	}
	return e, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(e Exam) error {
	if err := validate.Struct(e); err != nil {
		return newErrInvalidExamConfig(err.Error())
	}

	seenSections := map[string]bool{}
	for _, s := range e.Sections {
		if seenSections[s.ID] {
			return newErrInvalidExamConfig(fmt.Sprintf("duplicate section id %q", s.ID))
		}
		seenSections[s.ID] = true

		seenQuestions := map[string]bool{}
		for _, q := range s.Questions {
			if seenQuestions[q.ID] {
				return newErrInvalidExamConfig(fmt.Sprintf("duplicate question id %q in section %q", q.ID, s.ID))
			}
			seenQuestions[q.ID] = true

			if q.Type == QuestionCode && len(q.TestCases) == 0 {
				return newErrInvalidExamConfig(fmt.Sprintf("code question %q has no test cases", q.ID))
			}
			if q.Type == QuestionNumeric && q.NumericAnswer == nil {
				return newErrInvalidExamConfig(fmt.Sprintf("numeric question %q has no answer", q.ID))
			}
		}
	}
	return nil
}

func ReadTomlFile(path string) (Exam, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Exam{}, fmt.Errorf("failed to read exam file %s: %w", filepath.Base(path), err)
	}
	return ParseToml(content)
}
