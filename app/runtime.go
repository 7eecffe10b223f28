package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/ghsdash/config"
	coremetrics "github.com/kilianp07/ghsdash/core/metrics"
	coremon "github.com/kilianp07/ghsdash/core/monitoring"
	"github.com/kilianp07/ghsdash/core/pipeline"
	"github.com/kilianp07/ghsdash/core/runlog"
	"github.com/kilianp07/ghsdash/infra/logger"
	_ "github.com/kilianp07/ghsdash/infra/metrics"
	inframon "github.com/kilianp07/ghsdash/infra/monitoring"
	"github.com/kilianp07/ghsdash/infra/mqtt"
	infrarunlog "github.com/kilianp07/ghsdash/infra/runlog"
	"github.com/kilianp07/ghsdash/internal/eventbus"
)

const (
	drainTimeout = 5 * time.Second
	flushTimeout = 2 * time.Second
	busBuffer    = 64
)

// Runtime holds the services shared by every command: logging, error
// monitoring, metrics sinks, the run ledger, the event bus and the optional
// MQTT notifier.
type Runtime struct {
	Config *config.Config
	Log    logger.Logger
	Sink   coremetrics.PipelineSink
	Store  runlog.Store
	Bus    *eventbus.Bus

	mqtt    *mqtt.PahoClient
	fwdDone <-chan struct{}
	cancel  context.CancelFunc
}

// NewRuntime configures logging and monitoring and opens the metrics sinks,
// run ledger and MQTT connection described by cfg.
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, err
	}
	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewPipelineSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}
	store, err := infrarunlog.Open(cfg.RunLog)
	if err != nil {
		return nil, fmt.Errorf("run log: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		Config: cfg,
		Log:    logger.New("runtime"),
		Sink:   sink,
		Store:  store,
		Bus:    eventbus.New(eventbus.WithBuffer(busBuffer)),
		cancel: cancel,
	}
	if cfg.MQTT.Enabled() {
		client, err := mqtt.NewPahoClient(cfg.MQTT, rt.Bus)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		rt.mqtt = client
		rt.fwdDone = mqtt.ForwardUpdates(ctx, rt.Bus, client)
	}
	return rt, nil
}

// Runner returns a pipeline runner wired to the runtime services.
func (r *Runtime) Runner() *pipeline.Runner {
	return pipeline.NewRunner(r.Store, r.Sink, r.Bus, logger.New("pipeline"))
}

// Close drains pending notifications and releases every resource.
func (r *Runtime) Close() error {
	r.Bus.Close()
	if r.fwdDone != nil {
		select {
		case <-r.fwdDone:
		case <-time.After(drainTimeout):
			r.Log.Warnf("mqtt forwarder did not drain within %s", drainTimeout)
		}
	}
	r.cancel()
	if n := r.Bus.Dropped(); n > 0 {
		r.Log.Warnf("event bus dropped %d deliveries", n)
	}
	if r.mqtt != nil {
		r.mqtt.Disconnect()
	}
	if c, ok := r.Sink.(interface{ Close() }); ok {
		c.Close()
	}
	err := r.Store.Close()
	coremon.Flush(flushTimeout)
	return err
}
