package engine

import "github.com/lesprima/attempt-service/internal/model"

// EventType enumerates the push events an attempt emits to subscribers
// (the WebSocket stream, primarily).
type EventType string

const (
	EventTick    EventType = "tick"
	EventExpired EventType = "expired"
	EventResult  EventType = "result"
	EventFailed  EventType = "failed"
)

// Event is one push notification about the active attempt.
type Event struct {
	Type             EventType                `json:"event"`
	RemainingSeconds int64                    `json:"remaining_seconds,omitempty"`
	Outcome          *model.SubmissionOutcome `json:"outcome,omitempty"`
	Failure          *model.Failure           `json:"failure,omitempty"`
}

// State is the caller-facing view of an attempt, safe to serialize.
type State struct {
	Phase            model.AttemptPhase       `json:"phase"`
	Exam             *model.ExamDefinition    `json:"exam,omitempty"`
	Answers          map[int64]model.Answer   `json:"answers,omitempty"`
	Deadline         *int64                   `json:"deadline_unix,omitempty"`
	RemainingSeconds *int64                   `json:"remaining_seconds,omitempty"`
	Outcome          *model.SubmissionOutcome `json:"outcome,omitempty"`
	Failure          *model.Failure           `json:"failure,omitempty"`
}
