// Package catalog serves the configured map layers and the dashboard
// operations on them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/ghsdash/core/events"
	"github.com/kilianp07/ghsdash/core/geo"
	"github.com/kilianp07/ghsdash/core/layer"
	"github.com/kilianp07/ghsdash/core/logger"
	"github.com/kilianp07/ghsdash/internal/eventbus"
)

var (
	// ErrNotFound is returned for unknown layers and features.
	ErrNotFound = errors.New("not found")
	// ErrNotLoaded is returned for configured layers that failed to load.
	ErrNotLoaded = errors.New("layer not loaded")
	// ErrInvalidArgument is returned for bad query parameters.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Catalog holds the configured layers in WGS84.
type Catalog struct {
	mu     sync.RWMutex
	specs  []LayerSpec
	layers map[string]*layer.Layer

	concurrency int
	bus         eventbus.EventBus
	log         logger.Logger
	read        func(path string) (*layer.Layer, error)
}

// New validates cfg and returns an empty catalog. Loaded layers are
// announced on bus when it is not nil.
func New(cfg Config, bus eventbus.EventBus, log logger.Logger) (*Catalog, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("catalog config: %w", err)
	}
	return &Catalog{
		specs:       append([]LayerSpec(nil), cfg.Layers...),
		layers:      map[string]*layer.Layer{},
		concurrency: cfg.Concurrency,
		bus:         bus,
		log:         log,
		read:        layer.ReadFile,
	}, nil
}

// Load reads every configured layer concurrently. All layers are attempted;
// the returned error joins the individual failures.
func (c *Catalog) Load(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	var (
		mu   sync.Mutex
		errs []error
	)
	for _, s := range c.Specs() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.Reload(s.Name); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Reload re-reads one layer from disk and replaces it atomically. On error
// the previous version is kept.
func (c *Catalog) Reload(name string) error {
	s, ok := c.Spec(name)
	if !ok {
		return fmt.Errorf("layer %q: %w", name, ErrNotFound)
	}
	l, err := c.read(s.Path)
	if err == nil {
		l.Name = s.Name
		if l.CRS != geo.WGS84 {
			l, err = l.Reproject(geo.WGS84)
		}
	}
	if err != nil {
		err = fmt.Errorf("load layer %q: %w", name, err)
		c.publish(events.LayerLoaded{Layer: name, Err: err})
		if c.log != nil {
			c.log.Errorf("%v", err)
		}
		return err
	}
	c.mu.Lock()
	c.layers[name] = l
	c.mu.Unlock()
	if c.log != nil {
		c.log.Infof("layer %s loaded with %d features from %s", name, l.Len(), s.Path)
	}
	c.publish(events.LayerLoaded{Layer: name, Features: l.Len()})
	return nil
}

func (c *Catalog) publish(ev eventbus.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

// Get returns the loaded layer. Callers must not modify it.
func (c *Catalog) Get(name string) (*layer.Layer, error) {
	if _, ok := c.Spec(name); !ok {
		return nil, fmt.Errorf("layer %q: %w", name, ErrNotFound)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.layers[name]
	if !ok {
		return nil, fmt.Errorf("layer %q: %w", name, ErrNotLoaded)
	}
	return l, nil
}

// Spec returns the configuration of a layer.
func (c *Catalog) Spec(name string) (LayerSpec, bool) {
	for _, s := range c.specs {
		if s.Name == name {
			return s, true
		}
	}
	return LayerSpec{}, false
}

// Specs returns the layer configurations in declaration order.
func (c *Catalog) Specs() []LayerSpec {
	return append([]LayerSpec(nil), c.specs...)
}

// Watch reloads layers named by LayerUpdated events until ctx is done or
// the bus closes. Events match on the layer name or on the file path.
func (c *Catalog) Watch(ctx context.Context, bus eventbus.EventBus) {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			u, ok := ev.(events.LayerUpdated)
			if !ok {
				continue
			}
			for _, name := range c.match(u) {
				_ = c.Reload(name)
			}
		}
	}
}

func (c *Catalog) match(u events.LayerUpdated) []string {
	var names []string
	for _, s := range c.specs {
		if (u.Layer != "" && s.Name == u.Layer) || (u.Path != "" && samePath(s.Path, u.Path)) {
			names = append(names, s.Name)
		}
	}
	return names
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}
