package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lesprima/attempt-service/internal/gateway"
	"github.com/lesprima/attempt-service/internal/model"
	"github.com/lesprima/attempt-service/internal/store"
)

// PhaseError reports an operation attempted in the wrong phase.
type PhaseError struct {
	Op    string
	Phase model.AttemptPhase
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s not allowed in phase %s", e.Op, e.Phase)
}

// Deps bundles the collaborators an attempt needs. Now and TickInterval
// exist so tests can drive the clock deterministically.
type Deps struct {
	Gateway      gateway.Gateway
	Store        store.Store
	Log          zerolog.Logger
	Now          func() time.Time
	TickInterval time.Duration
}

func (d *Deps) fillDefaults() {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.TickInterval <= 0 {
		d.TickInterval = time.Second
	}
}

// Attempt is the session state machine for one student's exam run. All
// entry points (HTTP handlers, WebSocket actions, timer callbacks)
// serialize on one mutex, so a user submit and a timer expiry can never
// be observed simultaneously: one always wins the lock, and the phase
// guard makes the loser a no-op. That is the at-most-once submission
// guarantee.
type Attempt struct {
	studentID int
	deps      Deps
	log       zerolog.Logger

	mu          sync.Mutex
	phase       model.AttemptPhase
	exam        *model.ExamDefinition
	buffer      *Buffer
	deadline    time.Time
	outcome     *model.SubmissionOutcome
	failure     *model.Failure
	timer       *Timer
	subscribers map[chan Event]struct{}
	onIdle      func()
}

func newAttempt(studentID int, deps Deps, onIdle func()) *Attempt {
	deps.fillDefaults()
	return &Attempt{
		studentID:   studentID,
		deps:        deps,
		log:         deps.Log.With().Str("component", "attempt").Int("student_id", studentID).Logger(),
		phase:       model.PhaseIdle,
		subscribers: make(map[chan Event]struct{}),
		onIdle:      onIdle,
	}
}

// restoreAttempt rebuilds an attempt from a durable snapshot. A snapshot
// saved mid-SUBMITTING means the in-flight call died with the process,
// so it resumes as a recoverable failure the student can retry.
func restoreAttempt(ctx context.Context, studentID int, snap *store.Snapshot, deps Deps, onIdle func()) (*Attempt, error) {
	a := newAttempt(studentID, deps, onIdle)

	if snap.Exam != nil {
		if err := snap.Exam.Validate(); err != nil {
			return nil, fmt.Errorf("stored exam definition: %w", err)
		}
		a.exam = snap.Exam
		a.buffer = NewBuffer(snap.Exam)
		if err := a.buffer.Restore(snap.Answers); err != nil {
			return nil, fmt.Errorf("stored answers: %w", err)
		}
	}

	switch snap.Phase {
	case model.PhaseAwaitingCode:
		a.phase = model.PhaseAwaitingCode
	case model.PhaseTaking:
		if a.exam == nil {
			return nil, errors.New("taking snapshot without exam definition")
		}
		a.phase = model.PhaseTaking
		if snap.Deadline != nil {
			// The absolute deadline is restored, not the full budget:
			// elapsed wall time keeps counting across the reload. A
			// deadline already in the past expires immediately.
			a.deadline = *snap.Deadline
			a.startTimerLocked()
		}
	case model.PhaseSubmitting:
		if a.exam == nil {
			return nil, errors.New("submitting snapshot without exam definition")
		}
		a.phase = model.PhaseFailed
		a.failure = &model.Failure{Reason: "submission interrupted", Recoverable: true}
		if err := a.persist(ctx); err != nil {
			a.log.Error().Err(err).Msg("Persist restored phase failed")
		}
	case model.PhaseFailed:
		if a.exam == nil {
			return nil, errors.New("failed snapshot without exam definition")
		}
		a.phase = model.PhaseFailed
		a.failure = snap.Failure
		if a.failure == nil {
			a.failure = &model.Failure{Reason: "submission failed", Recoverable: true}
		}
	default:
		// IDLE or RESULT snapshots should never be durable; discard.
		a.phase = model.PhaseIdle
		_ = deps.Store.Clear(ctx, studentID)
	}

	return a, nil
}

// OpenCodePrompt moves IDLE to AWAITING_CODE.
func (a *Attempt) OpenCodePrompt(ctx context.Context) (*State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase == model.PhaseAwaitingCode {
		return a.stateLocked(), nil
	}
	if a.phase != model.PhaseIdle {
		return nil, &PhaseError{Op: "open code prompt", Phase: a.phase}
	}
	a.phase = model.PhaseAwaitingCode
	if err := a.persist(ctx); err != nil {
		return nil, err
	}
	return a.stateLocked(), nil
}

// EnterCode resolves the exam code and, on success, starts the attempt:
// fresh buffer, deadline computed from the time budget, timer running.
// A rejected code leaves the phase untouched; the caller shows a local
// message and the student tries again.
func (a *Attempt) EnterCode(ctx context.Context, code string) (*State, error) {
	a.mu.Lock()
	if a.phase == model.PhaseIdle {
		// Entering a code implies the prompt was opened.
		a.phase = model.PhaseAwaitingCode
	}
	if a.phase != model.PhaseAwaitingCode {
		phase := a.phase
		a.mu.Unlock()
		return nil, &PhaseError{Op: "enter code", Phase: phase}
	}
	a.mu.Unlock()

	// Resolve outside the lock; the phase guard below covers the race
	// with a concurrent abandon.
	exam, err := a.deps.Gateway.ResolveCode(ctx, code)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != model.PhaseAwaitingCode {
		return a.stateLocked(), nil
	}

	a.exam = exam
	a.buffer = NewBuffer(exam)
	a.outcome = nil
	a.failure = nil
	a.phase = model.PhaseTaking

	if !exam.Unbounded() {
		a.deadline = a.deps.Now().Add(time.Duration(exam.TimeBudgetSeconds) * time.Second)
		a.startTimerLocked()
	} else {
		// Zero budget: no deadline, no timer, only explicit submit.
		a.deadline = time.Time{}
	}

	if err := a.persist(ctx); err != nil {
		return nil, err
	}

	a.log.Info().
		Int64("exam_id", exam.ID).
		Int("questions", len(exam.Questions)).
		Int("budget_seconds", exam.TimeBudgetSeconds).
		Msg("Attempt started")

	return a.stateLocked(), nil
}

// SetAnswer records one answer and writes the snapshot through before
// returning. Rejected outside TAKING since the client disables input
// once submission begins.
func (a *Attempt) SetAnswer(ctx context.Context, questionID int64, ans model.Answer) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != model.PhaseTaking {
		return &PhaseError{Op: "set answer", Phase: a.phase}
	}
	if err := a.buffer.Set(questionID, ans); err != nil {
		return err
	}
	return a.persist(ctx)
}

// Submit is the user-initiated submission trigger. If the attempt is
// already SUBMITTING or has a RESULT (for instance the timer expired a
// moment earlier), the duplicate trigger is a no-op and the current
// state is returned.
func (a *Attempt) Submit(ctx context.Context) (*State, error) {
	return a.submit(ctx, false)
}

// Retry re-submits after a recoverable failure, re-snapshotting the
// buffer so it reflects exactly what the student last saw.
func (a *Attempt) Retry(ctx context.Context) (*State, error) {
	a.mu.Lock()
	if a.phase != model.PhaseFailed || a.failure == nil || !a.failure.Recoverable {
		phase := a.phase
		a.mu.Unlock()
		return nil, &PhaseError{Op: "retry", Phase: phase}
	}
	a.beginSubmissionLocked(ctx)
	exam := a.exam
	payload := buildPayload(exam, a.buffer.Snapshot())
	a.mu.Unlock()

	return a.finishSubmission(ctx, exam.ID, payload), nil
}

// Close acknowledges a terminal screen: RESULT, or a non-recoverable
// failure the student has read. The slot is cleared and the machine
// returns to IDLE.
func (a *Attempt) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.phase {
	case model.PhaseResult:
	case model.PhaseFailed:
	default:
		return &PhaseError{Op: "close", Phase: a.phase}
	}
	return a.resetLocked(ctx)
}

// Abandon explicitly walks away from the attempt: timer stopped, durable
// slot cleared. It does not cancel an in-flight submit — that call may
// still complete and its result is then discarded by the phase guard.
func (a *Attempt) Abandon(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase == model.PhaseIdle {
		return nil
	}
	return a.resetLocked(ctx)
}

// State returns the current caller-facing view.
func (a *Attempt) State() *State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

// Subscribe returns a channel of attempt events (ticks, expiry, result).
// The caller must invoke the cancel function to avoid leaks.
func (a *Attempt) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	a.mu.Lock()
	a.subscribers[ch] = struct{}{}
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subscribers[ch]; ok {
			delete(a.subscribers, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

// submit is the single guarded submission path shared by the user
// trigger and the timer expiry.
func (a *Attempt) submit(ctx context.Context, fromTimer bool) (*State, error) {
	a.mu.Lock()

	switch a.phase {
	case model.PhaseSubmitting, model.PhaseResult:
		// Duplicate trigger (submit click racing expiry, double click):
		// exactly one submission is already accounted for.
		st := a.stateLocked()
		a.mu.Unlock()
		return st, nil
	case model.PhaseTaking:
	default:
		phase := a.phase
		a.mu.Unlock()
		if fromTimer {
			// The timer is stopped on every exit from TAKING; a stray
			// late callback is harmless.
			return nil, nil
		}
		return nil, &PhaseError{Op: "submit", Phase: phase}
	}

	a.beginSubmissionLocked(ctx)
	exam := a.exam
	payload := buildPayload(exam, a.buffer.Snapshot())
	a.mu.Unlock()

	return a.finishSubmission(ctx, exam.ID, payload), nil
}

// beginSubmissionLocked stops the timer, freezes the buffer behind the
// phase guard and persists the SUBMITTING transition. Caller holds mu.
func (a *Attempt) beginSubmissionLocked(ctx context.Context) {
	a.stopTimerLocked()
	a.phase = model.PhaseSubmitting
	a.failure = nil
	if err := a.persist(ctx); err != nil {
		// The submission is more important than its bookkeeping; a
		// failed write-through here at worst resumes as a retry.
		a.log.Error().Err(err).Msg("Persist SUBMITTING failed")
	}
}

// finishSubmission performs the gateway call outside the lock and folds
// the result back into the machine. Gateway errors become state, never
// propagate to the caller.
func (a *Attempt) finishSubmission(ctx context.Context, examID int64, payload []model.SubmittedAnswer) *State {
	outcome, err := a.deps.Gateway.Submit(ctx, examID, payload)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != model.PhaseSubmitting {
		// Abandoned while in flight: the response is discarded so the
		// machine never lands in a half-submitted state.
		a.log.Warn().Int64("exam_id", examID).Msg("Submission finished after abandon, result discarded")
		return a.stateLocked()
	}

	if err != nil {
		var vErr *gateway.ValidationError
		if errors.As(err, &vErr) {
			a.failure = &model.Failure{Reason: vErr.Message, Recoverable: false}
		} else {
			a.failure = &model.Failure{Reason: "center backend unreachable", Recoverable: true}
		}
		a.phase = model.PhaseFailed
		if perr := a.persist(ctx); perr != nil {
			a.log.Error().Err(perr).Msg("Persist FAILED phase failed")
		}
		a.log.Warn().Err(err).Int64("exam_id", examID).Bool("recoverable", a.failure.Recoverable).Msg("Submission failed")
		a.broadcastLocked(Event{Type: EventFailed, Failure: a.failure})
		return a.stateLocked()
	}

	a.phase = model.PhaseResult
	a.outcome = outcome
	a.buffer = nil
	// Terminal success: the durable slot must not resurrect this attempt.
	if cerr := a.deps.Store.Clear(ctx, a.studentID); cerr != nil {
		a.log.Error().Err(cerr).Msg("Clear snapshot after success failed")
	}
	a.log.Info().
		Int64("exam_id", examID).
		Int("answers", len(payload)).
		Str("status", string(outcome.Status)).
		Msg("Submission accepted")
	a.broadcastLocked(Event{Type: EventResult, Outcome: outcome})
	return a.stateLocked()
}

func (a *Attempt) startTimerLocked() {
	if a.timer == nil {
		a.timer = NewTimerWithClock(a.handleTick, a.handleExpiry, a.deps.Now, a.deps.TickInterval)
	}
	a.timer.Start(a.deadline)
}

func (a *Attempt) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
}

func (a *Attempt) handleTick(remaining time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != model.PhaseTaking {
		return
	}
	a.broadcastLocked(Event{Type: EventTick, RemainingSeconds: int64(remaining / time.Second)})
}

func (a *Attempt) handleExpiry() {
	a.mu.Lock()
	if a.phase == model.PhaseTaking {
		a.broadcastLocked(Event{Type: EventExpired})
	}
	a.mu.Unlock()

	// Same guarded path as the explicit submit button.
	if _, err := a.submit(context.Background(), true); err != nil {
		a.log.Error().Err(err).Msg("Expiry submission failed")
	}
}

// resetLocked drops all attempt state and clears the durable slot.
func (a *Attempt) resetLocked(ctx context.Context) error {
	a.stopTimerLocked()
	if err := a.deps.Store.Clear(ctx, a.studentID); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	a.phase = model.PhaseIdle
	a.exam = nil
	a.buffer = nil
	a.deadline = time.Time{}
	a.outcome = nil
	a.failure = nil
	if a.onIdle != nil {
		a.onIdle()
	}
	return nil
}

// persist writes the durable snapshot through. Caller holds mu.
func (a *Attempt) persist(ctx context.Context) error {
	snap := &store.Snapshot{
		Phase:   a.phase,
		Exam:    a.exam,
		SavedAt: a.deps.Now(),
		Failure: a.failure,
	}
	if a.buffer != nil {
		snap.Answers = a.buffer.Snapshot()
	}
	if !a.deadline.IsZero() {
		d := a.deadline
		snap.Deadline = &d
	}
	if err := a.deps.Store.Save(ctx, a.studentID, snap); err != nil {
		return fmt.Errorf("write-through snapshot: %w", err)
	}
	return nil
}

func (a *Attempt) stateLocked() *State {
	st := &State{
		Phase:   a.phase,
		Exam:    a.exam,
		Outcome: a.outcome,
		Failure: a.failure,
	}
	if a.buffer != nil {
		st.Answers = a.buffer.Snapshot()
	}
	if a.phase == model.PhaseTaking && !a.deadline.IsZero() {
		unix := a.deadline.Unix()
		st.Deadline = &unix
		remaining := int64(a.deadline.Sub(a.deps.Now()) / time.Second)
		if remaining < 0 {
			remaining = 0
		}
		st.RemainingSeconds = &remaining
	}
	return st
}

// broadcastLocked fans an event out to all subscribers without blocking
// on a slow consumer: the stalest queued event is dropped first.
func (a *Attempt) broadcastLocked(ev Event) {
	for ch := range a.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// buildPayload walks the questions in display order so the payload is
// deterministic; skipped questions simply have no entry.
func buildPayload(exam *model.ExamDefinition, answers map[int64]model.Answer) []model.SubmittedAnswer {
	out := make([]model.SubmittedAnswer, 0, len(answers))
	for i := range exam.Questions {
		q := &exam.Questions[i]
		ans, ok := answers[q.ID]
		if !ok {
			continue
		}
		out = append(out, model.SubmittedAnswer{
			QuestionID:     q.ID,
			ChosenOptionID: ans.ChosenOptionID,
			WrittenText:    ans.WrittenText,
		})
	}
	return out
}
