package engine

import (
	"errors"
	"sync"

	"github.com/lesprima/attempt-service/internal/model"
)

// Buffer validation errors. These mark caller bugs, not user mistakes:
// a well-formed client never produces a shape mismatch.
var (
	ErrUnknownQuestion = errors.New("question is not part of this exam")
	ErrUnknownOption   = errors.New("option is not part of this question")
	ErrAnswerShape     = errors.New("answer shape does not match question kind")
)

// Buffer is the mutable in-memory answer map for one attempt. Writes are
// last-write-wins per question; unanswered questions have no entry. The
// submission path reads it only through Snapshot.
type Buffer struct {
	mu      sync.RWMutex
	kinds   map[int64]model.QuestionKind
	options map[int64]map[int64]struct{}
	answers map[int64]model.Answer
}

// NewBuffer builds an empty buffer shaped by the exam definition.
func NewBuffer(exam *model.ExamDefinition) *Buffer {
	b := &Buffer{
		kinds:   make(map[int64]model.QuestionKind, len(exam.Questions)),
		options: make(map[int64]map[int64]struct{}, len(exam.Questions)),
		answers: make(map[int64]model.Answer, len(exam.Questions)),
	}
	for i := range exam.Questions {
		q := &exam.Questions[i]
		b.kinds[q.ID] = q.Kind
		if q.Kind == model.QuestionKindChoice {
			opts := make(map[int64]struct{}, len(q.Options))
			for _, opt := range q.Options {
				opts[opt.ID] = struct{}{}
			}
			b.options[q.ID] = opts
		}
	}
	return b
}

// Set records or overwrites the answer for a question. A rejected answer
// leaves the buffer untouched.
func (b *Buffer) Set(questionID int64, ans model.Answer) error {
	if err := ans.Validate(); err != nil {
		return ErrAnswerShape
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	kind, ok := b.kinds[questionID]
	if !ok {
		return ErrUnknownQuestion
	}

	switch kind {
	case model.QuestionKindChoice:
		if ans.ChosenOptionID == nil {
			return ErrAnswerShape
		}
		if _, ok := b.options[questionID][*ans.ChosenOptionID]; !ok {
			return ErrUnknownOption
		}
	case model.QuestionKindFreeText:
		if ans.WrittenText == nil {
			return ErrAnswerShape
		}
	}

	b.answers[questionID] = ans
	return nil
}

// Get returns the current answer for a question, if any.
func (b *Buffer) Get(questionID int64) (model.Answer, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ans, ok := b.answers[questionID]
	return ans, ok
}

// Len returns the number of answered questions.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.answers)
}

// Snapshot returns an isolated copy of the current answers. Mutations
// after the snapshot never leak into a payload already in flight.
func (b *Buffer) Snapshot() map[int64]model.Answer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[int64]model.Answer, len(b.answers))
	for id, ans := range b.answers {
		out[id] = ans
	}
	return out
}

// Restore replays persisted answers into the buffer, validating each one
// against the exam shape. Used when resuming from a durable snapshot.
func (b *Buffer) Restore(answers map[int64]model.Answer) error {
	for id, ans := range answers {
		if err := b.Set(id, ans); err != nil {
			return err
		}
	}
	return nil
}
