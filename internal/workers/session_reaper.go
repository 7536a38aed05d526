package workers

import (
	"context"
	"time"
)

// DefaultSessionTTL is how long a session may sit idle before eviction
const DefaultSessionTTL = 30 * time.Minute

// SessionStore defines the session operations the reaper needs
type SessionStore interface {
	ReapIdle(ttl time.Duration) int
	Count() int
}

// Logger defines the interface for logging
type Logger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// SessionReaper evicts sessions that have been idle longer than the TTL
type SessionReaper struct {
	*BaseWorker
	sessions SessionStore
	ttl      time.Duration
	logger   Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// SessionReaperConfig holds configuration for the session reaper
type SessionReaperConfig struct {
	WorkerConfig WorkerConfig
	Sessions     SessionStore
	SessionTTL   time.Duration
	Logger       Logger
}

// NewSessionReaper creates a new session reaper
func NewSessionReaper(config SessionReaperConfig) *SessionReaper {
	ttl := config.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &SessionReaper{
		BaseWorker: NewBaseWorker(config.WorkerConfig),
		sessions:   config.Sessions,
		ttl:        ttl,
		logger:     config.Logger,
	}
}

// Start begins periodic reaping of idle sessions
func (w *SessionReaper) Start(ctx context.Context) error {
	if w.IsRunning() {
		return NewWorkerError(w.Name(), "start", nil, "worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.setRunning(true)
	w.logger.Info("Starting session reaper: %s (interval: %v, ttl: %v)", w.Name(), w.config.PollInterval, w.ttl)

	go w.run(runCtx)

	return nil
}

// Stop gracefully shuts down the reaper
func (w *SessionReaper) Stop(ctx context.Context) error {
	if !w.IsRunning() {
		return nil
	}

	w.logger.Info("Stopping session reaper: %s", w.Name())
	w.cancel()

	// Wait for the run loop to drain or give up after the shutdown timeout
	select {
	case <-w.done:
	case <-time.After(w.config.ShutdownTimeout):
		return NewWorkerError(w.Name(), "stop", nil, "shutdown timed out")
	case <-ctx.Done():
		return ctx.Err()
	}

	w.logger.Info("Session reaper stopped: %s", w.Name())
	return nil
}

// run sweeps on every tick until the context is cancelled
func (w *SessionReaper) run(ctx context.Context) {
	defer close(w.done)
	defer w.setRunning(false)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.runSweep(ctx)
		}
	}
}

// runSweep performs a single reaping pass
func (w *SessionReaper) runSweep(ctx context.Context) {
	startTime := w.recordRunStart()

	var sweep Sweep = w.reap
	if w.config.EnableRecovery {
		sweep = RecoverableSweep(sweep)
	}

	if err := sweep(ctx); err != nil {
		w.recordRunFailure(startTime)
		w.logger.Error("Session reaper sweep failed: %v", err)
		return
	}

	w.recordRunSuccess(startTime)
}

// reap evicts idle sessions and logs what was removed
func (w *SessionReaper) reap(ctx context.Context) error {
	reaped := w.sessions.ReapIdle(w.ttl)
	if reaped > 0 {
		w.logger.Info("Reaped %d idle session(s), %d remaining", reaped, w.sessions.Count())
	}
	return nil
}
