package snapshot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/checkconfig/internal/metrics"
)

// ErrWatcherRunning is returned when Watch is called twice.
var ErrWatcherRunning = errors.New("watcher already running")

// WatcherConfig contains configuration for the snapshot watcher.
type WatcherConfig struct {
	// Path is the snapshot file
	Path string
	// Debounce is the quiet period after the last change before reloading
	Debounce time.Duration
}

// DefaultWatcherConfig returns the default watcher configuration.
func DefaultWatcherConfig(path string) WatcherConfig {
	return WatcherConfig{
		Path:     path,
		Debounce: 200 * time.Millisecond,
	}
}

// ReloadFunc is called with every successfully reloaded snapshot.
type ReloadFunc func(ctx context.Context, reloadID string, snap *Snapshot)

// Watcher reloads the snapshot file into a Holder when it changes. A snapshot
// that fails to load is logged and the previous one stays current.
type Watcher struct {
	config   WatcherConfig
	holder   *Holder
	logger   zerolog.Logger
	onReload ReloadFunc

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher publishing into holder.
func NewWatcher(config WatcherConfig, holder *Holder, logger zerolog.Logger, onReload ReloadFunc) *Watcher {
	if config.Debounce <= 0 {
		config.Debounce = DefaultWatcherConfig(config.Path).Debounce
	}
	return &Watcher{
		config:   config,
		holder:   holder,
		logger:   logger.With().Str("component", "snapshot-watcher").Str("path", config.Path).Logger(),
		onReload: onReload,
	}
}

// Watch blocks until ctx is cancelled. The directory of the snapshot file is
// watched so that editors replacing the file by rename are noticed.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrWatcherRunning
	}
	w.running = true
	w.mu.Unlock()

	debounce := newDebouncer(w.config.Debounce)

	defer func() {
		debounce.stop()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.config.Path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.config.Path, err)
	}

	w.logger.Info().
		Dur("debounce", w.config.Debounce).
		Msg("snapshot watcher started")

	target := filepath.Clean(w.config.Path)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("snapshot watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target || event.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debug().Str("op", event.Op.String()).Msg("snapshot file changed")
			debounce.trigger(func() { _ = w.Reload(ctx) })

		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error().Err(err).Msg("snapshot watcher error")
		}
	}
}

// Reload loads the snapshot file and publishes it on success.
func (w *Watcher) Reload(ctx context.Context) error {
	reloadID := uuid.New().String()
	logger := w.logger.With().Str("reloadId", reloadID).Logger()

	start := time.Now()
	snap, err := Load(w.config.Path)
	if err != nil {
		metrics.RecordSnapshotReload("error")
		logger.Error().Err(err).Msg("snapshot reload failed, keeping previous snapshot")
		return err
	}

	w.holder.Swap(snap)
	metrics.RecordSnapshotReload("success")
	metrics.SetSnapshotHosts(float64(snap.Directory.Len()))

	logger.Info().
		Int("hosts", snap.Directory.Len()).
		Dur("latency", time.Since(start)).
		Msg("snapshot reloaded")

	if w.onReload != nil {
		w.onReload(ctx, reloadID, snap)
	}
	return nil
}

// debouncer runs the last triggered callback once no trigger arrived for the
// interval.
type debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
