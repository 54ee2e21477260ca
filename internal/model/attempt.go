package model

// AttemptPhase enumerates the discriminated states of one attempt.
// Exactly one phase is active at a time.
type AttemptPhase string

const (
	PhaseIdle         AttemptPhase = "IDLE"
	PhaseAwaitingCode AttemptPhase = "AWAITING_CODE"
	PhaseTaking       AttemptPhase = "TAKING"
	PhaseSubmitting   AttemptPhase = "SUBMITTING"
	PhaseResult       AttemptPhase = "RESULT"
	PhaseFailed       AttemptPhase = "FAILED"
)

// OutcomeStatus distinguishes graded outcomes from ones still awaiting
// manual review on the center backend.
type OutcomeStatus string

const (
	OutcomeGraded        OutcomeStatus = "GRADED"
	OutcomePendingReview OutcomeStatus = "PENDING_REVIEW"
)

// SubmissionOutcome is the center backend's verdict on a completed
// submission. This service renders it verbatim and computes nothing.
type SubmissionOutcome struct {
	Status       OutcomeStatus `json:"status"`
	ScorePercent float64       `json:"score_percent,omitempty"`
	CorrectCount int           `json:"correct_count,omitempty"`
	TotalCount   int           `json:"total_count,omitempty"`
}

// Failure describes why an attempt entered the FAILED phase.
// Recoverable failures keep the answer buffer and allow a retry.
type Failure struct {
	Reason      string `json:"reason"`
	Recoverable bool   `json:"recoverable"`
}

// EnterCodeRequest is the payload for entering an exam code.
type EnterCodeRequest struct {
	Code string `json:"code" binding:"required,min=4,max=32"`
}

// SetAnswerRequest is the payload for recording a single answer.
// The engine enforces that the shape matches the question kind.
type SetAnswerRequest struct {
	ChosenOptionID *int64  `json:"chosen_option_id" binding:"omitempty,min=1"`
	WrittenText    *string `json:"written_text" binding:"omitempty,max=20000"`
}
