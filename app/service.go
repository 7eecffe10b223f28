package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/ghsdash/api/layers"
	"github.com/kilianp07/ghsdash/api/runs"
	"github.com/kilianp07/ghsdash/core/catalog"
	coremetrics "github.com/kilianp07/ghsdash/core/metrics"
	"github.com/kilianp07/ghsdash/infra/logger"
	"github.com/kilianp07/ghsdash/infra/metrics"
	"github.com/kilianp07/ghsdash/infra/watch"
)

// Service serves the dashboard API over the layer catalog and keeps the
// catalog in sync with pipeline outputs.
type Service struct {
	Catalog *catalog.Catalog

	rt      *Runtime
	handler http.Handler
	watcher *watch.Watcher
	log     logger.Logger
}

// New builds the catalog, router and optional data directory watcher.
func New(rt *Runtime) (*Service, error) {
	cfg := rt.Config
	logg := logger.New("service")
	cat, err := catalog.New(cfg.Data, rt.Bus, logger.New("catalog"))
	if err != nil {
		return nil, err
	}

	var recorder coremetrics.RequestRecorder
	if r, ok := rt.Sink.(coremetrics.RequestRecorder); ok {
		recorder = r
	}
	rateLimit := cfg.Server.RateLimit
	if rateLimit < 0 {
		rateLimit = 0
	}
	router := layers.NewRouter(cat, layers.Options{
		RateLimit: rateLimit,
		Burst:     cfg.Server.Burst,
		Log:       logger.New("http"),
		Recorder:  recorder,
	})
	router.Handle("/api/runs", runs.NewHandler(rt.Store, cfg.Server.RunsToken)).Methods(http.MethodGet)

	svc := &Service{Catalog: cat, rt: rt, handler: router, log: logg}
	if cfg.Watch.Enabled {
		w, err := watch.New(cfg.Watch, rt.Bus)
		if err != nil {
			return nil, fmt.Errorf("watch: %w", err)
		}
		svc.watcher = w
	}
	return svc, nil
}

// Handler returns the HTTP handler of the API.
func (s *Service) Handler() http.Handler { return s.handler }

// Run loads the catalog, then serves HTTP until ctx is cancelled. Layers
// that fail to load are reported and served as unavailable.
func (s *Service) Run(ctx context.Context) error {
	cfg := s.rt.Config
	metrics.StartEventCollector(ctx, s.rt.Bus, s.rt.Sink)

	start := time.Now()
	if err := s.Catalog.Load(ctx); err != nil {
		s.log.Errorf("catalog load: %v", err)
	}
	s.log.Infof("catalog loaded %d layers in %s", len(s.Catalog.Specs()), time.Since(start).Round(time.Millisecond))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Catalog.Watch(ctx, s.rt.Bus)
		return nil
	})
	if s.watcher != nil {
		g.Go(func() error { return s.watcher.Run(ctx) })
	}
	if cfg.Metrics.PrometheusAddr != "" {
		g.Go(func() error { return metrics.StartPromServer(ctx, cfg.Metrics.PrometheusAddr) })
	}

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutMS)*time.Millisecond)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		s.log.Infof("serving dashboard API on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}
