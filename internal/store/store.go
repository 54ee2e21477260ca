package store

import (
	"context"
	"errors"
	"time"

	"github.com/lesprima/attempt-service/internal/model"
)

// ErrNotFound is returned by Load when the student has no durable snapshot.
var ErrNotFound = errors.New("attempt snapshot not found")

// Snapshot is the durable copy of one in-progress attempt. The engine
// writes it through synchronously on every answer mutation and phase
// transition, so a reload resumes exactly where the student left off.
type Snapshot struct {
	Phase    model.AttemptPhase     `json:"phase"`
	Exam     *model.ExamDefinition  `json:"exam,omitempty"`
	Answers  map[int64]model.Answer `json:"answers,omitempty"`
	Deadline *time.Time             `json:"deadline,omitempty"`
	Failure  *model.Failure         `json:"failure,omitempty"`
	SavedAt  time.Time              `json:"saved_at"`
}

// Clone returns a deep copy safe to hand across goroutines. The exam
// definition is shared: it is immutable for the attempt's lifetime.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	if s.Answers != nil {
		out.Answers = make(map[int64]model.Answer, len(s.Answers))
		for k, v := range s.Answers {
			out.Answers[k] = v
		}
	}
	if s.Failure != nil {
		f := *s.Failure
		out.Failure = &f
	}
	if s.Deadline != nil {
		d := *s.Deadline
		out.Deadline = &d
	}
	return &out
}

// Store persists attempt snapshots, one fixed slot per student.
// Save must be synchronous relative to the caller: when it returns, the
// snapshot is durable.
type Store interface {
	Save(ctx context.Context, studentID int, snap *Snapshot) error
	Load(ctx context.Context, studentID int) (*Snapshot, error)
	Clear(ctx context.Context, studentID int) error

	// Sweep removes snapshots not saved since the cutoff and returns
	// how many were removed. Used by the retention worker for slots
	// abandoned without an explicit close.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}
