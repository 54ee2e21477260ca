package model

import (
	"errors"
	"fmt"
)

// QuestionKind enumerates the supported question types.
type QuestionKind string

const (
	QuestionKindChoice   QuestionKind = "CHOICE"
	QuestionKindFreeText QuestionKind = "FREE_TEXT"
)

// Option is a selectable answer for a CHOICE question.
type Option struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Question is a single exam question as rendered to the student.
// CHOICE questions carry an ordered option list; FREE_TEXT questions carry none.
type Question struct {
	ID      int64        `json:"id"`
	Order   int          `json:"order"`
	Text    string       `json:"text"`
	Kind    QuestionKind `json:"kind"`
	Options []Option     `json:"options,omitempty"`
}

// HasOption reports whether the given option belongs to this question.
func (q *Question) HasOption(optionID int64) bool {
	for i := range q.Options {
		if q.Options[i].ID == optionID {
			return true
		}
	}
	return false
}

// ExamDefinition is the immutable exam snapshot resolved from an exam code.
// It is fetched once per attempt and never mutated locally.
type ExamDefinition struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	TimeBudgetSeconds int        `json:"time_budget_seconds"`
	Questions         []Question `json:"questions"`
}

// Unbounded reports whether the exam has no time budget.
func (e *ExamDefinition) Unbounded() bool {
	return e.TimeBudgetSeconds == 0
}

// Question returns the question with the given ID.
func (e *ExamDefinition) Question(questionID int64) (*Question, bool) {
	for i := range e.Questions {
		if e.Questions[i].ID == questionID {
			return &e.Questions[i], true
		}
	}
	return nil, false
}

// Validate checks the structural invariants of a resolved exam definition.
// Definitions come from the center backend; a violation here means the
// upstream payload is broken and the attempt must not start.
func (e *ExamDefinition) Validate() error {
	if e.ID <= 0 {
		return errors.New("exam id must be positive")
	}
	if e.Title == "" {
		return errors.New("exam title is empty")
	}
	if e.TimeBudgetSeconds < 0 {
		return fmt.Errorf("time budget is negative: %d", e.TimeBudgetSeconds)
	}
	if len(e.Questions) == 0 {
		return errors.New("exam has no questions")
	}

	seenQuestions := make(map[int64]struct{}, len(e.Questions))
	for i := range e.Questions {
		q := &e.Questions[i]
		if q.ID <= 0 {
			return fmt.Errorf("question %d: id must be positive", i)
		}
		if _, dup := seenQuestions[q.ID]; dup {
			return fmt.Errorf("question id %d appears twice", q.ID)
		}
		seenQuestions[q.ID] = struct{}{}

		// Display order is 1-based and gapless within an exam.
		if q.Order != i+1 {
			return fmt.Errorf("question id %d: order %d, expected %d", q.ID, q.Order, i+1)
		}
		if q.Text == "" {
			return fmt.Errorf("question id %d: text is empty", q.ID)
		}

		switch q.Kind {
		case QuestionKindChoice:
			if len(q.Options) < 2 {
				return fmt.Errorf("question id %d: choice question needs at least 2 options, got %d", q.ID, len(q.Options))
			}
			seenOptions := make(map[int64]struct{}, len(q.Options))
			for _, opt := range q.Options {
				if opt.ID <= 0 {
					return fmt.Errorf("question id %d: option id must be positive", q.ID)
				}
				if _, dup := seenOptions[opt.ID]; dup {
					return fmt.Errorf("question id %d: option id %d appears twice", q.ID, opt.ID)
				}
				seenOptions[opt.ID] = struct{}{}
			}
		case QuestionKindFreeText:
			if len(q.Options) != 0 {
				return fmt.Errorf("question id %d: free-text question must not carry options", q.ID)
			}
		default:
			return fmt.Errorf("question id %d: unknown kind %q", q.ID, q.Kind)
		}
	}

	return nil
}
