package metrics

import (
	"context"

	"github.com/kilianp07/ghsdash/core/events"
	coremetrics "github.com/kilianp07/ghsdash/core/metrics"
	"github.com/kilianp07/ghsdash/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records layer sizes
// for every successful LayerLoaded event. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.PipelineSink) {
	if bus == nil || sink == nil {
		return
	}
	rec, ok := sink.(coremetrics.LayerSizeRecorder)
	if !ok {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if e, ok := ev.(events.LayerLoaded); ok && e.Err == nil {
					_ = rec.RecordLayerSize(e.Layer, e.Features)
				}
			}
		}
	}()
}
