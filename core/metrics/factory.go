package metrics

import "github.com/kilianp07/ghsdash/core/factory"

var sinkRegistry = factory.NewRegistry[PipelineSink]()

// RegisterPipelineSink adds a sink factory identified by name.
func RegisterPipelineSink(name string, f factory.Factory[PipelineSink]) error {
	return sinkRegistry.Register(name, f)
}

// NewPipelineSink creates a PipelineSink from the provided configuration.
func NewPipelineSink(cfgs []factory.ModuleConfig) (PipelineSink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	if len(cfgs) == 1 {
		return sinkRegistry.Create(cfgs[0])
	}
	sinks := make([]PipelineSink, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}
