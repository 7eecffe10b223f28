package mqtt

import (
	"context"

	"github.com/kilianp07/ghsdash/core/events"
	coremqtt "github.com/kilianp07/ghsdash/core/mqtt"
	"github.com/kilianp07/ghsdash/infra/logger"
	"github.com/kilianp07/ghsdash/internal/eventbus"
)

// ForwardUpdates subscribes to the bus and publishes local LayerUpdated
// events through n until ctx is done or the bus closes. Events that arrived
// from the broker are skipped. The returned channel is closed once the
// forwarder has stopped; events queued before the bus closed are still sent.
func ForwardUpdates(ctx context.Context, bus eventbus.EventBus, n coremqtt.Notifier) <-chan struct{} {
	log := logger.New("mqtt_forward")
	sub := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
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
				if !ok || u.Remote || u.Layer == "" {
					continue
				}
				if err := n.Notify(u); err != nil {
					log.Errorf("notify %s: %v", u.Layer, err)
				}
			}
		}
	}()
	return done
}
