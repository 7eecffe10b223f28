// Package events defines the layer related events emitted on the event bus.
//
// Available event types:
//   - LayerUpdated: a pipeline or watcher saw a layer file change
//   - LayerLoaded: the catalog (re)loaded a layer
package events
