package metrics

// MultiSink fans out events to multiple sinks.
type MultiSink struct {
	Sinks []PipelineSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...PipelineSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRun forwards the run to all sinks, returning the first error encountered.
func (m *MultiSink) RecordRun(ev RunEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordRun(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordLayerSize forwards layer sizes when supported by the sink.
func (m *MultiSink) RecordLayerSize(layer string, features int) error {
	for _, s := range m.Sinks {
		if r, ok := s.(LayerSizeRecorder); ok {
			if err := r.RecordLayerSize(layer, features); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordRequest forwards request events when supported by the sink.
func (m *MultiSink) RecordRequest(ev RequestEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(RequestRecorder); ok {
			if err := r.RecordRequest(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
