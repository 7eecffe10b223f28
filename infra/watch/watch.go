// Package watch turns filesystem changes in the processed-data directory into
// layer update events.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kilianp07/ghsdash/core/events"
	"github.com/kilianp07/ghsdash/core/layer"
	"github.com/kilianp07/ghsdash/infra/logger"
	"github.com/kilianp07/ghsdash/internal/eventbus"
)

// Config controls the data directory watcher.
type Config struct {
	Enabled    bool     `json:"enabled"`
	Dirs       []string `json:"dirs"`
	DebounceMS int      `json:"debounce_ms"`
	Extensions []string `json:"extensions"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if len(c.Dirs) == 0 {
		c.Dirs = []string{"data/processed_data"}
	}
	if c.DebounceMS == 0 {
		c.DebounceMS = 500
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".geojson", ".json"}
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DebounceMS < 0 {
		return errors.New("watch.debounce_ms must be >= 0")
	}
	if c.Enabled && len(c.Dirs) == 0 {
		return errors.New("watch.dirs required when enabled")
	}
	return nil
}

// Watcher publishes a LayerUpdated event once a watched file has been quiet
// for the debounce delay.
type Watcher struct {
	w        *fsnotify.Watcher
	bus      eventbus.EventBus
	exts     map[string]bool
	debounce time.Duration
	log      logger.Logger
	pending  map[string]time.Time
	now      func() time.Time
}

// New creates the watcher and registers every configured directory. Missing
// directories are created.
func New(cfg Config, bus eventbus.EventBus) (*Watcher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, d := range cfg.Dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			_ = fw.Close()
			return nil, err
		}
		if err := fw.Add(d); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("watch %s: %w", d, err)
		}
	}
	exts := map[string]bool{}
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Watcher{
		w:        fw,
		bus:      bus,
		exts:     exts,
		debounce: time.Duration(cfg.DebounceMS) * time.Millisecond,
		log:      logger.New("watch"),
		pending:  map[string]time.Time{},
		now:      time.Now,
	}, nil
}

// Run processes filesystem events until ctx is done, then closes the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.w.Close() }()
	tick := w.debounce / 2
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.log.Errorf("watch error: %v", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if !w.exts[strings.ToLower(filepath.Ext(ev.Name))] {
		return
	}
	w.log.Debugf("%s %s", ev.Op, ev.Name)
	w.pending[ev.Name] = w.now()
}

func (w *Watcher) flush() {
	now := w.now()
	for path, seen := range w.pending {
		if now.Sub(seen) < w.debounce {
			continue
		}
		delete(w.pending, path)
		w.bus.Publish(events.LayerUpdated{
			Layer: layer.NameFromPath(path),
			Path:  path,
			Time:  now,
		})
		w.log.Infof("layer file changed: %s", path)
	}
}
