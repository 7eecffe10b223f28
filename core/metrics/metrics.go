package metrics

import "time"

// RunEvent describes one completed pipeline step.
type RunEvent struct {
	RunID    string
	Step     string
	Duration time.Duration
	Success  bool
	Counts   map[string]int
	Time     time.Time
}

// PipelineSink records pipeline runs for observability purposes.
type PipelineSink interface {
	RecordRun(ev RunEvent) error
}

// LayerSizeRecorder records the number of features served per layer.
type LayerSizeRecorder interface {
	RecordLayerSize(layer string, features int) error
}

// RequestEvent is a completed API request.
type RequestEvent struct {
	Route    string
	Code     int
	Duration time.Duration
}

// RequestRecorder records API requests.
type RequestRecorder interface {
	RecordRequest(ev RequestEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordRun(RunEvent) error          { return nil }
func (NopSink) RecordLayerSize(string, int) error { return nil }
func (NopSink) RecordRequest(RequestEvent) error  { return nil }
