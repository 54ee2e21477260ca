package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lesprima/attempt-service/internal/engine"
	"github.com/lesprima/attempt-service/internal/model"
	"github.com/lesprima/attempt-service/internal/store"
)

// restartedRegistry builds a second registry over the same store and
// gateway, simulating a process restart.
func restartedRegistry(e *testEnv) *engine.Registry {
	return engine.NewRegistry(engine.Deps{
		Gateway:      e.gw,
		Store:        e.store,
		Log:          zerolog.Nop(),
		Now:          e.clock.Now,
		TickInterval: 2 * time.Millisecond,
	})
}

func TestResumeRestoresTakingAttempt(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	a := startTaking(t, e, 7)
	if err := a.SetAnswer(ctx, 10, model.Answer{ChosenOptionID: optID(101)}); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	before := a.State()

	resumed, err := restartedRegistry(e).Attempt(ctx, 7)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	st := resumed.State()
	if st.Phase != model.PhaseTaking {
		t.Fatalf("expected TAKING after resume, got %s", st.Phase)
	}
	if got := st.Answers[10]; got.ChosenOptionID == nil || *got.ChosenOptionID != 101 {
		t.Fatalf("answers lost on resume: %+v", st.Answers)
	}
	// Absolute deadline survives: elapsed time is not refunded.
	if *st.Deadline != *before.Deadline {
		t.Fatalf("deadline drifted on resume: %d != %d", *st.Deadline, *before.Deadline)
	}
}

func TestResumePastDeadlineExpiresImmediately(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	startTaking(t, e, 7)
	// Process dies; wall clock runs past the deadline before restart.
	e.clock.Advance(time.Hour)

	resumed, err := restartedRegistry(e).Attempt(ctx, 7)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	waitFor(t, func() bool { return resumed.State().Phase == model.PhaseResult }, "overdue attempt never submitted")
	if n := e.gw.submitCount(); n != 1 {
		t.Fatalf("expected one submission, got %d", n)
	}
}

func TestResumeInterruptedSubmissionBecomesRetryable(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	exam := choiceExam()
	deadline := e.clock.Now().Add(10 * time.Minute)
	snap := &store.Snapshot{
		Phase:    model.PhaseSubmitting,
		Exam:     exam,
		Answers:  map[int64]model.Answer{10: {ChosenOptionID: optID(101)}},
		Deadline: &deadline,
		SavedAt:  e.clock.Now(),
	}
	if err := e.store.Save(ctx, 7, snap); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	resumed, err := restartedRegistry(e).Attempt(ctx, 7)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	st := resumed.State()
	if st.Phase != model.PhaseFailed || st.Failure == nil || !st.Failure.Recoverable {
		t.Fatalf("interrupted submission must resume retryable, got %+v", st)
	}

	if _, err := resumed.Retry(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	e.gw.mu.Lock()
	payload := e.gw.lastPayload
	e.gw.mu.Unlock()
	if len(payload) != 1 || payload[0].QuestionID != 10 {
		t.Fatalf("retry after restart lost answers: %+v", payload)
	}
}

func TestResumeFailedAttempt(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	snap := &store.Snapshot{
		Phase:   model.PhaseFailed,
		Exam:    choiceExam(),
		Failure: &model.Failure{Reason: "center backend unreachable", Recoverable: true},
		SavedAt: e.clock.Now(),
	}
	if err := e.store.Save(ctx, 7, snap); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	resumed, err := restartedRegistry(e).Attempt(ctx, 7)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	st := resumed.State()
	if st.Phase != model.PhaseFailed || st.Failure.Reason != "center backend unreachable" {
		t.Fatalf("failure state lost on resume: %+v", st)
	}
}

func TestCorruptSnapshotIsDiscarded(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	// A TAKING snapshot without an exam definition cannot be rebuilt.
	snap := &store.Snapshot{
		Phase:   model.PhaseTaking,
		SavedAt: e.clock.Now(),
	}
	if err := e.store.Save(ctx, 7, snap); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	a, err := restartedRegistry(e).Attempt(ctx, 7)
	if err != nil {
		t.Fatalf("corrupt snapshot must not wedge the student: %v", err)
	}
	if st := a.State(); st.Phase != model.PhaseIdle {
		t.Fatalf("expected fresh IDLE attempt, got %s", st.Phase)
	}
	if _, err := e.store.Load(ctx, 7); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("corrupt snapshot not cleared: %v", err)
	}
}

func TestRegistryReturnsSameInstance(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	a1, err := e.registry.Attempt(ctx, 7)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	a2, err := e.registry.Attempt(ctx, 7)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if a1 != a2 {
		t.Fatal("expected one live attempt per student")
	}

	b, err := e.registry.Attempt(ctx, 8)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if b == a1 {
		t.Fatal("students must not share attempts")
	}
}
