package websocket

import "github.com/lesprima/attempt-service/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest is sent by the client to save a single answer.
type AutosaveRequest struct {
	Action         Action  `json:"action"`
	QuestionID     int64   `json:"question_id"`
	ChosenOptionID *int64  `json:"chosen_option_id,omitempty"`
	WrittenText    *string `json:"written_text,omitempty"`
}

// SubmitRequest is sent by the client to finish the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventTick    Event = "tick"
	EventExpired Event = "expired"
	EventSaved   Event = "saved"
	EventResult  Event = "result"
	EventFailed  Event = "failed"
	EventError   Event = "error"
	EventPong    Event = "pong"
)

type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

type ExpiredResponse struct {
	Event Event `json:"event"`
}

type SavedResponse struct {
	Event      Event `json:"event"`
	QuestionID int64 `json:"question_id"`
}

type ResultResponse struct {
	Event   Event                    `json:"event"`
	Outcome *model.SubmissionOutcome `json:"outcome"`
}

type FailedResponse struct {
	Event   Event          `json:"event"`
	Failure *model.Failure `json:"failure"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
