package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one cycle of a periodic loop. The context is cancelled on
// shutdown; a running cycle is allowed to finish.
type Job func(ctx context.Context) error

// Runner owns the interval timing, shutdown signaling and per-cycle error
// isolation for one background loop. A cycle that fails (or panics) is
// logged and the loop simply waits for its next scheduled tick; it never
// busy-loops on errors.
type Runner struct {
	name     string
	interval func() time.Duration
	job      Job
	logger   zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup

	mu        sync.RWMutex
	lastRun   time.Time
	lastError string
	runs      uint64
}

// NewRunner creates a runner. interval is consulted before every wait so a
// config reload can change the cadence between cycles.
func NewRunner(name string, interval func() time.Duration, job Job, logger zerolog.Logger) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger.With().Str("component", name).Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start launches the loop. The first cycle runs immediately.
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.run()
	r.logger.Info().Msg("loop started")
}

// Stop signals shutdown and waits for the in-flight cycle to finish
func (r *Runner) Stop() {
	close(r.stopChan)
	r.wg.Wait()
	r.logger.Info().Msg("loop stopped")
}

func (r *Runner) run() {
	defer r.wg.Done()

	r.cycle()
	for {
		timer := time.NewTimer(r.interval())
		select {
		case <-timer.C:
			r.cycle()
		case <-r.stopChan:
			timer.Stop()
			return
		}
	}
}

func (r *Runner) cycle() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel the cycle's context if shutdown arrives mid-cycle, so blocked
	// external calls return promptly instead of holding up Stop.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-r.stopChan:
			cancel()
		case <-done:
		}
	}()

	start := time.Now()
	err := r.safeRun(ctx)

	r.mu.Lock()
	r.lastRun = start
	r.runs++
	if err != nil {
		r.lastError = err.Error()
	} else {
		r.lastError = ""
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error().Err(err).Dur("took", time.Since(start)).Msg("cycle failed")
	}
}

// safeRun converts a panicking cycle into an error so one bad cycle cannot
// take the whole loop down.
func (r *Runner) safeRun(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("cycle panicked: %v", rec)
		}
	}()
	return r.job(ctx)
}

// Stats reports the runner's heartbeat for the status API
type Stats struct {
	Name      string    `json:"name"`
	LastRun   time.Time `json:"last_run"`
	Runs      uint64    `json:"runs"`
	LastError string    `json:"last_error,omitempty"`
}

// Stats returns the runner's current heartbeat
func (r *Runner) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Name: r.name, LastRun: r.lastRun, Runs: r.runs, LastError: r.lastError}
}

// Cron wraps robfig/cron for the daily cadences (watchlist refresh,
// outcome reconciliation) that want wall-clock schedules rather than
// intervals.
type Cron struct {
	inner  *cron.Cron
	logger zerolog.Logger
}

// NewCron creates a cron scheduler
func NewCron(logger zerolog.Logger) *Cron {
	return &Cron{
		inner:  cron.New(),
		logger: logger.With().Str("component", "cron").Logger(),
	}
}

// Add registers a job under a cron spec (standard 5-field format)
func (c *Cron) Add(name, spec string, job Job) error {
	logger := c.logger.With().Str("job", name).Logger()
	_, err := c.inner.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		if err := job(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	return nil
}

// Start begins the cron scheduler
func (c *Cron) Start() {
	c.inner.Start()
}

// Stop stops the scheduler and waits for running jobs
func (c *Cron) Stop() {
	ctx := c.inner.Stop()
	<-ctx.Done()
}
