package inference

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// pollInterval is the tick between reconciler sweeps.
const pollInterval = 3 * time.Second

// Reconciler is the polling backstop for missed or delayed push delivery.
// It runs only while the store holds at least one active job: the
// zero-to-nonzero transition starts it with an immediate sweep, and it
// stops the moment the active count returns to zero.
type Reconciler struct {
	svc      *Service
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func newReconciler(svc *Service, interval time.Duration, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		svc:      svc,
		interval: interval,
		logger:   logger.With().Str("component", "reconciler").Logger(),
	}
}

// Running reports whether the poll loop is active.
func (r *Reconciler) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// syncState starts or stops the loop to match the store's active count.
// Called after every submission and every applied update.
func (r *Reconciler) syncState() {
	active := r.svc.store.ActiveCount()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case active > 0 && !r.running:
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		r.running = true
		r.logger.Debug().Int("active", active).Msg("starting poll loop")
		go r.run(ctx)
	case active == 0 && r.running:
		r.cancel()
		r.cancel = nil
		r.running = false
		r.logger.Debug().Msg("stopping poll loop")
	}
}

// Stop shuts the loop down regardless of active count (process teardown).
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.cancel()
		r.cancel = nil
		r.running = false
	}
}

// run executes one immediate sweep and then one per tick. Sweeps share
// this single goroutine, so they can never overlap: a sweep that outlives
// the interval simply delays the next one.
func (r *Reconciler) run(ctx context.Context) {
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep polls the gateway once per active job and routes every observed
// state through the service's shared update path. A single failed poll is
// logged and retried on the next tick; it never evicts the job.
func (r *Reconciler) sweep(ctx context.Context) {
	for _, job := range r.svc.store.ActiveJobs() {
		resp, err := r.svc.gw.JobStatus(ctx, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("poll failed, will retry next tick")
			continue
		}
		r.svc.applyPolled(job.ID, resp)
	}
}
