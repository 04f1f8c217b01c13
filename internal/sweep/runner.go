// Package sweep holds the background passes that advance appointments,
// deliver notifications and expire activation tokens.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/telescope-scheduler/internal/application"
	"github.com/example/telescope-scheduler/internal/logging"
	"github.com/example/telescope-scheduler/internal/persistence"
)

// Sweep is one background pass. Run returns an error only when the pass
// could not list its candidates.
type Sweep interface {
	Name() string
	Run(ctx context.Context) error
}

// Runner schedules sweeps on a cron scheduler. A sweep never overlaps with
// itself and a panicking sweep does not stop the scheduler.
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	names  map[cron.EntryID]string
}

// NewRunner builds an idle runner.
func NewRunner(logger *slog.Logger) *Runner {
	logger = defaultLogger(logger).With("component", "sweep.Runner")
	adapter := cronLogger{logger: logger}
	return &Runner{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger: logger,
		ctx:    context.Background(),
		names:  make(map[cron.EntryID]string),
	}
}

// Add registers s under schedule, a cron expression or descriptor such as
// "@every 1m".
func (r *Runner) Add(schedule string, s Sweep) error {
	if s == nil {
		return errors.New("sweep: nil sweep")
	}
	id, err := r.cron.AddFunc(schedule, func() {
		r.mu.Lock()
		ctx := r.ctx
		r.mu.Unlock()
		_ = RunOnce(ctx, r.logger, s)
	})
	if err != nil {
		return fmt.Errorf("schedule %s sweep %q: %w", s.Name(), schedule, err)
	}
	r.mu.Lock()
	r.names[id] = s.Name()
	r.mu.Unlock()
	r.logger.Info("sweep registered", "sweep", s.Name(), "schedule", schedule)
	return nil
}

// Scheduled returns the registered sweep names keyed by their next run.
func (r *Runner) Scheduled() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Time, len(r.names))
	for _, entry := range r.cron.Entries() {
		out[r.names[entry.ID]] = entry.Next
	}
	return out
}

// Start begins running sweeps in the background. Ticks receive a context
// derived from ctx that is canceled by Stop.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()
	r.cron.Start()
	r.logger.Info("sweep runner started")
}

// Stop halts scheduling and waits for running sweeps to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	done := r.cron.Stop()
	<-done.Done()
	r.logger.Info("sweep runner stopped")
}

// RunOnce executes a single pass of s with a sweep scoped logger on ctx.
func RunOnce(ctx context.Context, logger *slog.Logger, s Sweep) error {
	logger = defaultLogger(logger).With("sweep", s.Name())
	ctx = logging.ContextWithLogger(ctx, logger)

	started := time.Now()
	err := s.Run(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "sweep failed", "error", err, "elapsed", time.Since(started))
		return err
	}
	logger.DebugContext(ctx, "sweep completed", "elapsed", time.Since(started))
	return nil
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func sweepLogger(ctx context.Context, base *slog.Logger, name string) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return base.With("sweep", name)
}

func isNotFound(err error) bool {
	return errors.Is(err, application.ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
