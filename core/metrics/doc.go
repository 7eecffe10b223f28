// Package metrics defines the sinks that record pipeline runs, layer sizes
// and API requests. Sinks like the Prometheus and Influx implementations in
// infra/metrics are registered by name and combined with NewMultiSink when
// several are configured.
package metrics
