package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lesprima/attempt-service/internal/store"
)

// Registry hands out the single live Attempt per student, lazily
// resuming from the durable store on first access after a process
// restart. Attempts that return to IDLE evict themselves so the map
// only holds sessions that carry state.
type Registry struct {
	mu       sync.Mutex
	attempts map[int]*Attempt
	deps     Deps
	log      zerolog.Logger
}

func NewRegistry(deps Deps) *Registry {
	deps.fillDefaults()
	return &Registry{
		attempts: make(map[int]*Attempt),
		deps:     deps,
		log:      deps.Log.With().Str("component", "attempt_registry").Logger(),
	}
}

// Attempt returns the live attempt for a student, creating or resuming
// one as needed. Concurrent calls for the same student get the same
// instance.
func (r *Registry) Attempt(ctx context.Context, studentID int) (*Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.attempts[studentID]; ok {
		return a, nil
	}

	onIdle := func() { r.evict(studentID) }

	snap, err := r.deps.Store.Load(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a := newAttempt(studentID, r.deps, onIdle)
			r.attempts[studentID] = a
			return a, nil
		}
		return nil, err
	}

	a, err := restoreAttempt(ctx, studentID, snap, r.deps, onIdle)
	if err != nil {
		// A snapshot the engine cannot rebuild from is unsalvageable;
		// dropping it beats wedging the student out of new attempts.
		r.log.Error().Err(err).Int("student_id", studentID).Msg("Corrupt snapshot discarded")
		if cerr := r.deps.Store.Clear(ctx, studentID); cerr != nil {
			return nil, cerr
		}
		a = newAttempt(studentID, r.deps, onIdle)
	} else {
		r.log.Info().
			Int("student_id", studentID).
			Str("phase", string(a.State().Phase)).
			Msg("Attempt resumed from snapshot")
	}

	r.attempts[studentID] = a
	return a, nil
}

// evict runs from an attempt's onIdle callback. The attempt holds its
// own mutex at that point; registry locking stays strictly one-way
// (registry then attempt) everywhere else, so this cannot deadlock.
func (r *Registry) evict(studentID int) {
	go func() {
		r.mu.Lock()
		delete(r.attempts, studentID)
		r.mu.Unlock()
	}()
}

// Len reports the number of live attempts, for health reporting.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}
