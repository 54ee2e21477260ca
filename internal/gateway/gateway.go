package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/lesprima/attempt-service/internal/model"
)

// ErrCodeNotFound is returned by ResolveCode for an invalid or expired
// exam code. It is user-facing and non-fatal: the attempt stays in
// AWAITING_CODE.
var ErrCodeNotFound = errors.New("exam code not found")

// NetworkError marks a submit failure that is safe to retry: the center
// backend was unreachable or answered with a server error. The answer
// buffer must be preserved.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("submission gateway unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError marks a submit rejection by the center backend: the
// payload does not satisfy server-side constraints. Retrying the same
// buffer cannot succeed, so the failure is surfaced as non-recoverable.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("submission rejected by center backend: %s", e.Message)
}

// Gateway is the single seam between the attempt engine and the center
// backend. Exam authoring, grading and persistence all live behind it.
type Gateway interface {
	// ResolveCode exchanges an exam code for an exam definition.
	// Fails with ErrCodeNotFound for unknown/expired codes.
	ResolveCode(ctx context.Context, code string) (*model.ExamDefinition, error)

	// Submit sends the answer snapshot for grading. Fails with
	// *NetworkError (retryable) or *ValidationError (non-retryable).
	Submit(ctx context.Context, examID int64, answers []model.SubmittedAnswer) (*model.SubmissionOutcome, error)
}
