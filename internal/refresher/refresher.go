// Package refresher drives the periodic catalog update: a jittered timer,
// a minimum gap between successful runs, a playback gate, and a file lock
// so only one updater touches the shards at a time.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"tapedeck/internal/logging"
)

// ErrStaleLock reports that the shard lock could not be acquired within
// the deadline. The cycle is skipped, not retried until the next tick.
var ErrStaleLock = errors.New("refresh lock held elsewhere")

// ErrSkipped reports a cycle that did not run because a gate was closed.
var ErrSkipped = errors.New("refresh skipped")

const lockRetryDelay = 500 * time.Millisecond

// Updater is the catalog-facing side of a refresh run.
type Updater interface {
	// Update merges newly added descriptors into the shards and rebuilds
	// the snapshot, returning the number of new descriptors.
	Update(ctx context.Context) (int, error)
}

// Result describes one completed refresh run.
type Result struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Added    int
	Err      error
}

// Options configures a Refresher.
type Options struct {
	Interval    time.Duration // tick interval before jitter, default one hour
	MinGap      time.Duration // minimum time between successful runs, default five hours
	LockTimeout time.Duration // flock deadline, default ten seconds
	StopOnError bool

	// Playing reports whether the appliance is mid-playback; refreshes are
	// deferred while it returns true. Nil means never playing.
	Playing func() bool

	// OnResult observes each completed run, success or failure. Optional.
	OnResult func(Result)

	Logger *slog.Logger
}

// Refresher runs catalog updates in the background.
type Refresher struct {
	updater Updater
	lock    *flock.Flock
	opts    Options
	logger  *slog.Logger
	rng     *rand.Rand

	mu          sync.Mutex
	lastSuccess time.Time
}

// New creates a refresher guarding its runs with a lock file at lockPath.
func New(updater Updater, lockPath string, opts Options) *Refresher {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.MinGap <= 0 {
		opts.MinGap = 5 * time.Hour
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Refresher{
		updater: updater,
		lock:    flock.New(lockPath),
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "refresher"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run loops until the context is cancelled, attempting a refresh on each
// jittered tick. A failed run is logged and the loop continues unless
// StopOnError is set.
func (r *Refresher) Run(ctx context.Context) error {
	for {
		timer := time.NewTimer(r.nextInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		err := r.RunOnce(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case errors.Is(err, ErrSkipped), errors.Is(err, ErrStaleLock):
			r.logger.Debug("refresh cycle skipped", logging.Error(err))
		default:
			r.logger.Error("refresh cycle failed", logging.Error(err))
			if r.opts.StopOnError {
				return err
			}
		}
	}
}

// RunOnce performs a single gated refresh attempt.
func (r *Refresher) RunOnce(ctx context.Context) error {
	if r.opts.Playing != nil && r.opts.Playing() {
		return fmt.Errorf("%w: playback in progress", ErrSkipped)
	}
	if since := time.Since(r.LastSuccess()); since < r.opts.MinGap {
		return fmt.Errorf("%w: last refresh %s ago", ErrSkipped, since.Round(time.Second))
	}
	return r.locked(ctx)
}

// Force refreshes immediately, bypassing the min-gap and playback gates.
// The shard lock still applies.
func (r *Refresher) Force(ctx context.Context) error {
	return r.locked(ctx)
}

func (r *Refresher) locked(ctx context.Context) error {
	lockCtx, cancel := context.WithTimeout(ctx, r.opts.LockTimeout)
	defer cancel()
	locked, err := r.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !locked {
		return ErrStaleLock
	}
	defer func() {
		if err := r.lock.Unlock(); err != nil {
			r.logger.Warn("release refresh lock", logging.Error(err))
		}
	}()

	result := Result{RunID: uuid.NewString(), Started: time.Now()}
	result.Added, result.Err = r.updater.Update(ctx)
	result.Finished = time.Now()

	if result.Err == nil {
		r.mu.Lock()
		r.lastSuccess = result.Finished
		r.mu.Unlock()
		r.logger.Info("catalog refreshed",
			logging.String("run_id", result.RunID),
			logging.Int("added", result.Added),
			logging.Duration("elapsed", result.Finished.Sub(result.Started)))
	}
	if r.opts.OnResult != nil {
		r.opts.OnResult(result)
	}
	if result.Err != nil {
		return fmt.Errorf("refresh run %s: %w", result.RunID, result.Err)
	}
	return nil
}

// LastSuccess returns the completion time of the most recent successful
// run, or the zero time.
func (r *Refresher) LastSuccess() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSuccess
}

// MarkSuccess seeds the last-success time, typically from persisted state
// so a restart does not trigger an immediate refresh.
func (r *Refresher) MarkSuccess(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.After(r.lastSuccess) {
		r.lastSuccess = t
	}
}

// nextInterval applies ±10% jitter so appliances on the same network do
// not refresh in lockstep.
func (r *Refresher) nextInterval() time.Duration {
	jitter := 0.9 + 0.2*r.rng.Float64()
	return time.Duration(float64(r.opts.Interval) * jitter)
}
