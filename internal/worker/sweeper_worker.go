package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lesprima/attempt-service/internal/store"
)

// SweeperWorker periodically deletes durable snapshots older than the
// retention window. Abandoned browsers never call DELETE, so their
// slots would otherwise accumulate forever.
type SweeperWorker struct {
	store     store.Store
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
}

// NewSweeperWorker creates a new SweeperWorker.
func NewSweeperWorker(st store.Store, retention, interval time.Duration, log zerolog.Logger) *SweeperWorker {
	return &SweeperWorker{
		store:     st,
		retention: retention,
		interval:  interval,
		log:       log.With().Str("component", "sweeper_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *SweeperWorker) Start(ctx context.Context) {
	w.log.Info().
		Dur("retention", w.retention).
		Dur("interval", w.interval).
		Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SweeperWorker) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.retention)
	removed, err := w.store.Sweep(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Sweep error")
		}
		return
	}
	if removed > 0 {
		w.log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("Stale snapshots removed")
	}
}
