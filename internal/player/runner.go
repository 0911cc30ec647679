package player

import (
	"context"
	"log/slog"
	"sync"
)

// Runner keeps one session alive and replaces it whenever a reload is
// requested, either by a full refresh or from the local surface.
type Runner struct {
	deps     Deps
	reloadCh chan struct{}
	logger   *slog.Logger

	mu         sync.RWMutex
	session    *Session
	generation uint64
}

func NewRunner(deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{deps: deps, reloadCh: make(chan struct{}, 1), logger: logger}
}

// RequestReload schedules a session restart; it never blocks.
func (r *Runner) RequestReload() {
	select {
	case r.reloadCh <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done, restarting the session on every reload.
func (r *Runner) Run(ctx context.Context) {
	for {
		session := NewSession(r.deps, r.RequestReload)
		session.Start(ctx)
		r.mu.Lock()
		r.session = session
		generation := r.generation
		r.mu.Unlock()
		r.logger.Info("player session running", "generation", generation)

		select {
		case <-ctx.Done():
			session.Stop()
			return
		case <-r.reloadCh:
		}

		session.Stop()
		// media handles from the old session must not leak into the new one
		r.deps.Cache.Reset()
		r.mu.Lock()
		r.generation++
		r.mu.Unlock()
		r.logger.Info("player reloading")
	}
}

// Session returns the running session, nil before the first start.
func (r *Runner) Session() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session
}

// Generation counts completed reloads; the kiosk page reloads when it changes.
func (r *Runner) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}
