// Package judge is the contract between the exam engine and the code
// execution service grading programming answers.
package judge

import (
	"context"
	"errors"
)

type TestCase struct {
	Input  string `json:"input"`
	Answer string `json:"answer"`
}

type Request struct {
	Language  string
	Source    string
	TestCases []TestCase
}

type Status string

const (
	StatusAccepted      Status = "accepted"
	StatusPartial       Status = "partial"
	StatusWrongAnswer   Status = "wrong_answer"
	StatusCompileError  Status = "compile_error"
	StatusRuntimeError  Status = "runtime_error"
	StatusTimeLimit     Status = "time_limit_exceeded"
	StatusInternalError Status = "internal_error"
)

type Result struct {
	Status      Status
	PassedCount int
	TotalCount  int
	TimeMs      int
	MemoryKiB   int
}

type Judge interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// Func adapts a function to the Judge interface.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Evaluate(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

var ErrUnavailable = errors.New("judge is not available")

// Unavailable fails every evaluation. Code answers then wait for a
// manual grade.
func Unavailable() Judge {
	return Func(func(ctx context.Context, req Request) (Result, error) {
		return Result{}, ErrUnavailable
	})
}
