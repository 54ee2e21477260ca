package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lesprima/attempt-service/internal/engine"
	"github.com/lesprima/attempt-service/internal/gateway"
	"github.com/lesprima/attempt-service/internal/model"
	"github.com/lesprima/attempt-service/internal/store"
	"github.com/lesprima/attempt-service/internal/store/memory"
)

// fakeGateway counts submissions and can fail or block on demand.
type fakeGateway struct {
	mu          sync.Mutex
	exams       map[string]*model.ExamDefinition
	outcome     *model.SubmissionOutcome
	submitErr   error
	block       chan struct{}
	submits     int
	lastPayload []model.SubmittedAnswer
}

func newFakeGateway(exam *model.ExamDefinition) *fakeGateway {
	return &fakeGateway{
		exams: map[string]*model.ExamDefinition{"MTK-001": exam},
		outcome: &model.SubmissionOutcome{
			Status:       model.OutcomeGraded,
			ScorePercent: 50,
		},
	}
}

func (g *fakeGateway) ResolveCode(ctx context.Context, code string) (*model.ExamDefinition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	exam, ok := g.exams[code]
	if !ok {
		return nil, gateway.ErrCodeNotFound
	}
	return exam, nil
}

func (g *fakeGateway) Submit(ctx context.Context, examID int64, answers []model.SubmittedAnswer) (*model.SubmissionOutcome, error) {
	g.mu.Lock()
	g.submits++
	g.lastPayload = answers
	block := g.block
	err := g.submitErr
	outcome := g.outcome
	g.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (g *fakeGateway) submitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submits
}

func (g *fakeGateway) setSubmitErr(err error) {
	g.mu.Lock()
	g.submitErr = err
	g.mu.Unlock()
}

type testEnv struct {
	registry *engine.Registry
	store    store.Store
	gw       *fakeGateway
	clock    *fakeClock
}

func newTestEnv() *testEnv {
	clock := newFakeClock()
	gw := newFakeGateway(choiceExam())
	st := memory.NewStore()
	registry := engine.NewRegistry(engine.Deps{
		Gateway:      gw,
		Store:        st,
		Log:          zerolog.Nop(),
		Now:          clock.Now,
		TickInterval: 2 * time.Millisecond,
	})
	return &testEnv{registry: registry, store: st, gw: gw, clock: clock}
}

func (e *testEnv) attempt(t *testing.T, studentID int) *engine.Attempt {
	t.Helper()
	a, err := e.registry.Attempt(context.Background(), studentID)
	if err != nil {
		t.Fatalf("load attempt: %v", err)
	}
	return a
}

func startTaking(t *testing.T, e *testEnv, studentID int) *engine.Attempt {
	t.Helper()
	a := e.attempt(t, studentID)
	if _, err := a.EnterCode(context.Background(), "MTK-001"); err != nil {
		t.Fatalf("enter code: %v", err)
	}
	return a
}

func TestEnterCodeStartsTaking(t *testing.T) {
	e := newTestEnv()
	a := startTaking(t, e, 7)

	st := a.State()
	if st.Phase != model.PhaseTaking {
		t.Fatalf("expected TAKING, got %s", st.Phase)
	}
	if st.Deadline == nil {
		t.Fatal("expected a deadline for a bounded exam")
	}
	want := e.clock.Now().Add(600 * time.Second).Unix()
	if *st.Deadline != want {
		t.Fatalf("deadline %d, want %d", *st.Deadline, want)
	}

	snap, err := e.store.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("snapshot not written through: %v", err)
	}
	if snap.Phase != model.PhaseTaking {
		t.Fatalf("snapshot phase %s, want TAKING", snap.Phase)
	}
}

func TestEnterCodeUnknownKeepsPhase(t *testing.T) {
	e := newTestEnv()
	a := e.attempt(t, 7)

	_, err := a.EnterCode(context.Background(), "WRONG")
	if !errors.Is(err, gateway.ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
	if st := a.State(); st.Phase != model.PhaseAwaitingCode {
		t.Fatalf("expected AWAITING_CODE after bad code, got %s", st.Phase)
	}

	// The same prompt accepts a correct code afterwards.
	if _, err := a.EnterCode(context.Background(), "MTK-001"); err != nil {
		t.Fatalf("retry with valid code: %v", err)
	}
}

func TestSetAnswerWritesThrough(t *testing.T) {
	e := newTestEnv()
	a := startTaking(t, e, 7)
	ctx := context.Background()

	if err := a.SetAnswer(ctx, 10, model.Answer{ChosenOptionID: optID(101)}); err != nil {
		t.Fatalf("set answer: %v", err)
	}

	snap, err := e.store.Load(ctx, 7)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if got := snap.Answers[10]; got.ChosenOptionID == nil || *got.ChosenOptionID != 101 {
		t.Fatalf("snapshot missing written-through answer: %+v", got)
	}
}

func TestSetAnswerRejectedOutsideTaking(t *testing.T) {
	e := newTestEnv()
	a := e.attempt(t, 7)

	err := a.SetAnswer(context.Background(), 10, model.Answer{ChosenOptionID: optID(100)})
	var phaseErr *engine.PhaseError
	if !errors.As(err, &phaseErr) {
		t.Fatalf("expected phase error, got %v", err)
	}
}

func TestSubmitAtMostOnceUnderConcurrentTriggers(t *testing.T) {
	e := newTestEnv()
	a := startTaking(t, e, 7)
	ctx := context.Background()

	release := make(chan struct{})
	e.gw.mu.Lock()
	e.gw.block = release
	e.gw.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Submit(ctx); err != nil {
				t.Errorf("submit: %v", err)
			}
		}()
	}

	// The expiry path races the user triggers through the same guard.
	e.clock.Advance(time.Hour)

	waitFor(t, func() bool { return e.gw.submitCount() == 1 }, "submission never reached gateway")
	close(release)
	wg.Wait()

	waitFor(t, func() bool { return a.State().Phase == model.PhaseResult }, "never reached RESULT")
	if n := e.gw.submitCount(); n != 1 {
		t.Fatalf("expected exactly one submission, got %d", n)
	}
}

func TestExpirySubmitsBufferedAnswers(t *testing.T) {
	e := newTestEnv()
	a := startTaking(t, e, 7)
	ctx := context.Background()

	if err := a.SetAnswer(ctx, 10, model.Answer{ChosenOptionID: optID(101)}); err != nil {
		t.Fatalf("set answer: %v", err)
	}

	e.clock.Advance(time.Hour)
	waitFor(t, func() bool { return a.State().Phase == model.PhaseResult }, "expiry never submitted")

	if n := e.gw.submitCount(); n != 1 {
		t.Fatalf("expected one submission, got %d", n)
	}
	e.gw.mu.Lock()
	payload := e.gw.lastPayload
	e.gw.mu.Unlock()
	if len(payload) != 1 || payload[0].QuestionID != 10 {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	// Terminal success clears the durable slot.
	if _, err := e.store.Load(ctx, 7); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected cleared snapshot, got %v", err)
	}
}

func TestNetworkFailureIsRecoverable(t *testing.T) {
	e := newTestEnv()
	a := startTaking(t, e, 7)
	ctx := context.Background()

	if err := a.SetAnswer(ctx, 11, model.Answer{WrittenText: text("jawaban")}); err != nil {
		t.Fatalf("set answer: %v", err)
	}

	e.gw.setSubmitErr(&gateway.NetworkError{Err: errors.New("connection refused")})
	st, err := a.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if st.Phase != model.PhaseFailed || st.Failure == nil || !st.Failure.Recoverable {
		t.Fatalf("expected recoverable FAILED, got %+v", st)
	}

	// Retry reuses the frozen buffer once the backend recovers.
	e.gw.setSubmitErr(nil)
	st, err = a.Retry(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if st.Phase != model.PhaseResult {
		t.Fatalf("expected RESULT after retry, got %s", st.Phase)
	}
	e.gw.mu.Lock()
	payload := e.gw.lastPayload
	e.gw.mu.Unlock()
	if len(payload) != 1 || payload[0].QuestionID != 11 {
		t.Fatalf("retry lost buffered answers: %+v", payload)
	}
}

func TestValidationFailureIsNotRecoverable(t *testing.T) {
	e := newTestEnv()
	a := startTaking(t, e, 7)
	ctx := context.Background()

	e.gw.setSubmitErr(&gateway.ValidationError{Message: "exam window closed"})
	st, err := a.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if st.Phase != model.PhaseFailed || st.Failure.Recoverable {
		t.Fatalf("expected non-recoverable FAILED, got %+v", st)
	}
	if st.Failure.Reason != "exam window closed" {
		t.Fatalf("expected backend reason, got %q", st.Failure.Reason)
	}

	var phaseErr *engine.PhaseError
	if _, err := a.Retry(ctx); !errors.As(err, &phaseErr) {
		t.Fatalf("retry after non-recoverable failure must be rejected, got %v", err)
	}
}

func TestCloseReturnsToIdle(t *testing.T) {
	e := newTestEnv()
	a := startTaking(t, e, 7)
	ctx := context.Background()

	if _, err := a.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := a.State(); st.Phase != model.PhaseIdle || st.Outcome != nil {
		t.Fatalf("expected clean IDLE, got %+v", st)
	}
	if _, err := e.store.Load(ctx, 7); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected cleared snapshot, got %v", err)
	}
}

func TestAbandonDiscardsInFlightResult(t *testing.T) {
	e := newTestEnv()
	a := startTaking(t, e, 7)
	ctx := context.Background()

	release := make(chan struct{})
	e.gw.mu.Lock()
	e.gw.block = release
	e.gw.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Submit(ctx)
	}()

	waitFor(t, func() bool { return e.gw.submitCount() == 1 }, "submission never started")

	if err := a.Abandon(ctx); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	close(release)
	<-done

	if st := a.State(); st.Phase != model.PhaseIdle || st.Outcome != nil {
		t.Fatalf("in-flight result leaked into abandoned attempt: %+v", st)
	}
}

func TestUnboundedExamHasNoTimer(t *testing.T) {
	e := newTestEnv()
	unbounded := choiceExam()
	unbounded.TimeBudgetSeconds = 0
	e.gw.mu.Lock()
	e.gw.exams["MTK-001"] = unbounded
	e.gw.mu.Unlock()

	a := startTaking(t, e, 7)

	st := a.State()
	if st.Deadline != nil || st.RemainingSeconds != nil {
		t.Fatalf("unbounded exam must carry no deadline: %+v", st)
	}

	e.clock.Advance(1000 * time.Hour)
	time.Sleep(20 * time.Millisecond)
	if st := a.State(); st.Phase != model.PhaseTaking {
		t.Fatalf("unbounded exam auto-submitted: %s", st.Phase)
	}
	if n := e.gw.submitCount(); n != 0 {
		t.Fatalf("expected no submissions, got %d", n)
	}
}

func TestTickEventsReachSubscribers(t *testing.T) {
	e := newTestEnv()
	a := startTaking(t, e, 7)

	events, cancel := a.Subscribe()
	defer cancel()

	select {
	case ev := <-events:
		if ev.Type != engine.EventTick {
			t.Fatalf("expected tick, got %s", ev.Type)
		}
		if ev.RemainingSeconds <= 0 || ev.RemainingSeconds > 600 {
			t.Fatalf("implausible remaining seconds: %d", ev.RemainingSeconds)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick event received")
	}
}
