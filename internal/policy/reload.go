package policy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadDebounce is the quiet period after the last write before reloading.
const ReloadDebounce = 500 * time.Millisecond

// Reloader watches policy files for changes and triggers hot-reload.
type Reloader struct {
	watcher  *fsnotify.Watcher
	reload   func() error
	log      *zap.Logger
	paths    []string
	debounce time.Duration
}

// NewReloader creates a file watcher for the given paths. Paths that do
// not exist are skipped. reload runs after each debounced change.
func NewReloader(paths []string, reload func() error, log *zap.Logger) (*Reloader, error) {
	if log == nil {
		log = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	var watched []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := watcher.Add(p); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to watch %q: %w", p, err)
		}
		watched = append(watched, p)
	}

	return &Reloader{
		watcher:  watcher,
		reload:   reload,
		log:      log,
		paths:    watched,
		debounce: ReloadDebounce,
	}, nil
}

// Paths returns the watched paths.
func (r *Reloader) Paths() []string {
	return r.paths
}

// Run watches for file changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer func() { _ = r.watcher.Close() }()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(r.debounce, func() {
					if err := r.reload(); err != nil {
						r.log.Error("hot-reload failed", zap.String("file", event.Name), zap.Error(err))
					} else {
						r.log.Info("hot-reload: policy reloaded", zap.String("file", event.Name))
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("file watcher error", zap.Error(err))
		}
	}
}

// Apply loads path and pushes its configuration into a running engine.
// The tool rules are applied through setRules when non-nil.
func Apply(path string, engine Engine, setRules func(*PolicyConfig)) (*PolicyConfig, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	engine.SetExecutionControlConfig(cfg.ExecutionControl())
	if setRules != nil {
		setRules(cfg)
	}
	return cfg, nil
}
