package mqtt

import (
	"fmt"
	"strings"

	"github.com/kilianp07/ghsdash/core/events"
)

// DefaultPrefix is the topic root used when none is configured.
const DefaultPrefix = "ghs"

// Notifier announces layer updates to other dashboard instances.
type Notifier interface {
	Notify(ev events.LayerUpdated) error
}

// Topic returns the topic a layer update is published on.
func Topic(prefix, layer string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "/layers/" + layer
}

// Wildcard returns the subscription filter matching every layer topic.
func Wildcard(prefix string) string { return Topic(prefix, "+") }

// LayerFromTopic extracts the layer name from a topic built by Topic.
func LayerFromTopic(prefix, topic string) (string, error) {
	root := Topic(prefix, "")
	name, ok := strings.CutPrefix(topic, root)
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("%s: %w", topic, ErrInvalidTopic)
	}
	return name, nil
}
