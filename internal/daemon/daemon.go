package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"tapedeck/internal/catalog"
	"tapedeck/internal/config"
	"tapedeck/internal/logging"
	"tapedeck/internal/notifications"
	"tapedeck/internal/refresher"
	"tapedeck/internal/statestore"
)

// Daemon owns the long-running appliance services and the instance lock.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *statestore.Store
	catalog *catalog.Catalog
	refresh *refresher.Refresher
	notify  notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	playing atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	store, err := statestore.Open(filepath.Join(cfg.Paths.StateDir, "tapedeck.db"))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	cat, err := NewCatalog(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	notify := notifications.NewService(cfg.Notifications.NtfyTopic, cfg.Notifications.RequestTimeout)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		catalog:  cat,
		notify:   notify,
		lockPath: filepath.Join(cfg.Paths.StateDir, "tapedeckd.lock"),
	}
	d.lock = flock.New(d.lockPath)

	d.refresh = refresher.New(cat, filepath.Join(cfg.Paths.StateDir, "refresh.lock"), refresher.Options{
		Interval:    time.Duration(cfg.Refresh.IntervalSeconds) * time.Second,
		MinGap:      time.Duration(cfg.Refresh.MinGapSeconds) * time.Second,
		LockTimeout: time.Duration(cfg.Refresh.LockTimeoutSeconds) * time.Second,
		StopOnError: cfg.Refresh.StopOnError,
		Playing:     d.playing.Load,
		OnResult:    d.onRefreshResult,
		Logger:      logger,
	})
	return d, nil
}

// Catalog exposes the query surface to CLI and playback adapters.
func (d *Daemon) Catalog() *catalog.Catalog { return d.catalog }

// Store exposes the persisted appliance state.
func (d *Daemon) Store() *statestore.Store { return d.store }

// SetPlaying gates the refresher; updates are deferred during playback.
func (d *Daemon) SetPlaying(playing bool) { d.playing.Store(playing) }

// Start acquires the instance lock, builds the catalog, and launches the
// background refresher when auto-update is enabled.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tapedeck daemon instance is already running")
	}

	if err := d.catalog.Build(ctx, false); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("build catalog: %w", err)
	}
	if dates := d.catalog.Dates(); len(dates) > 0 {
		if err := d.notify.NotifyCatalogBuilt(ctx, len(dates)); err != nil {
			d.logger.Warn("catalog notification failed", logging.Error(err))
		}
	}

	if last, err := d.store.LastSuccessfulRefresh(ctx); err != nil {
		d.logger.Warn("load refresh history", logging.Error(err))
	} else if !last.IsZero() {
		d.refresh.MarkSuccess(last)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if d.cfg.Refresh.AutoUpdate {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.refresh.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("refresher stopped", logging.Error(err))
			}
		}()
	}

	d.running.Store(true)
	d.logger.Info("tapedeck daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("auto_update", d.cfg.Refresh.AutoUpdate))
	return nil
}

// Stop cancels background work and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("tapedeck daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// RefreshNow forces a single refresh outside the timer, bypassing the
// min-gap and playback gates. The shard lock still applies.
func (d *Daemon) RefreshNow(ctx context.Context) error {
	return d.refresh.Force(ctx)
}

// TestNotification sends a test push, reporting whether one was attempted.
func (d *Daemon) TestNotification(ctx context.Context) (bool, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, nil
	}
	return true, d.notify.TestNotification(ctx)
}

func (d *Daemon) onRefreshResult(result refresher.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.store.RecordRefresh(ctx, result); err != nil {
		d.logger.Warn("record refresh run", logging.Error(err))
	}
	if result.Err != nil {
		if err := d.notify.NotifyRefreshFailed(ctx, result.Err); err != nil {
			d.logger.Warn("refresh failure notification failed", logging.Error(err))
		}
		return
	}
	if result.Added > 0 {
		if err := d.notify.NotifyRefreshCompleted(ctx, result.Added, result.Finished.Sub(result.Started)); err != nil {
			d.logger.Warn("refresh notification failed", logging.Error(err))
		}
	}
}
