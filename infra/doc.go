// Package infra contains technical adapters: the MQTT notifier, metrics
// sinks, run ledger stores, the GeoPackage writer and the data directory
// watcher. These packages should depend only on the interfaces defined in
// the core packages.
package infra
