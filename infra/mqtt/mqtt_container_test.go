//go:build !no_containers

package mqtt

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/kilianp07/ghsdash/core/events"
	"github.com/kilianp07/ghsdash/internal/eventbus"
	"github.com/kilianp07/ghsdash/internal/testutil"
)

func TestLayerUpdateRoundTrip_Mosquitto(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	broker, cleanup, err := testutil.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto not available: %v", err)
	}
	defer cleanup()

	busB := eventbus.New()
	defer busB.Close()
	sub := busB.Subscribe()
	receiver, err := NewPahoClient(Config{Broker: broker, ClientID: "receiver", QoS: 1}, busB)
	if err != nil {
		t.Fatalf("receiver: %v", err)
	}
	defer receiver.Disconnect()

	busA := eventbus.New()
	defer busA.Close()
	sender, err := NewPahoClient(Config{Broker: broker, ClientID: "sender", QoS: 1}, busA)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	defer sender.Disconnect()

	fwdCtx, stop := context.WithCancel(ctx)
	defer stop()
	ForwardUpdates(fwdCtx, busA, sender)

	deadline := time.After(10 * time.Second)
	for {
		busA.Publish(events.LayerUpdated{Layer: "schools", Path: "data/schools.geojson", RunID: "r42"})
		select {
		case ev := <-sub:
			u := ev.(events.LayerUpdated)
			if u.Layer != "schools" || u.RunID != "r42" || !u.Remote {
				t.Fatalf("unexpected event %+v", u)
			}
			return
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			t.Fatal("update not received")
		}
	}
}
