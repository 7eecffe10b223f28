// Package pipeline runs data preparation steps and records their outcome.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/ghsdash/core/events"
	"github.com/kilianp07/ghsdash/core/logger"
	"github.com/kilianp07/ghsdash/core/metrics"
	"github.com/kilianp07/ghsdash/core/monitoring"
	"github.com/kilianp07/ghsdash/core/runlog"
	"github.com/kilianp07/ghsdash/internal/eventbus"
)

// Output is a layer file written by a step.
type Output struct {
	Layer string
	Path  string
}

// Result is what a step reports back to the runner.
type Result struct {
	Outputs []Output
	Counts  map[string]int
}

// StepFunc performs the work of a step. The run id is available through
// RunID(ctx).
type StepFunc func(ctx context.Context) (Result, error)

// Runner executes named steps and records each run in the ledger, the
// metrics sink, the event bus and the error monitor.
type Runner struct {
	Store   runlog.Store
	Sink    metrics.PipelineSink
	Bus     eventbus.EventBus
	Log     logger.Logger
	Monitor monitoring.Monitor

	now   func() time.Time
	newID func() string
}

// NewRunner returns a Runner. Nil dependencies are replaced with no-op
// implementations.
func NewRunner(store runlog.Store, sink metrics.PipelineSink, bus eventbus.EventBus, log logger.Logger) *Runner {
	if store == nil {
		store = runlog.NewMemoryStore()
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Runner{
		Store:   store,
		Sink:    sink,
		Bus:     bus,
		Log:     log,
		Monitor: monitoring.Current(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

type runIDKey struct{}

// RunID returns the id of the run executing ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Run executes fn as step name. The returned record is also appended to the
// ledger. Ledger and sink failures are logged, never returned; the step
// error is returned unchanged.
func (r *Runner) Run(ctx context.Context, name string, inputs []string, fn StepFunc) (runlog.Record, error) {
	rec := runlog.Record{
		ID:     r.newID(),
		Step:   name,
		Start:  r.now(),
		Inputs: inputs,
	}
	r.logf("info", "run %s: step %s started", rec.ID, name)

	res, err := r.call(context.WithValue(ctx, runIDKey{}, rec.ID), fn)
	rec.End = r.now()
	rec.Counts = res.Counts
	for _, o := range res.Outputs {
		rec.Outputs = append(rec.Outputs, o.Path)
	}
	if err != nil {
		rec.Error = err.Error()
	}

	if aerr := r.Store.Append(ctx, rec); aerr != nil {
		r.logf("error", "run %s: append run log: %v", rec.ID, aerr)
	}
	if serr := r.Sink.RecordRun(metrics.RunEvent{
		RunID:    rec.ID,
		Step:     name,
		Duration: rec.Duration(),
		Success:  err == nil,
		Counts:   rec.Counts,
		Time:     rec.End,
	}); serr != nil {
		r.logf("warn", "run %s: record metrics: %v", rec.ID, serr)
	}

	if err != nil {
		if r.Monitor != nil {
			r.Monitor.CaptureException(err, map[string]string{"step": name, "run_id": rec.ID})
		}
		r.logf("error", "run %s: step %s failed after %s: %v", rec.ID, name, FormatRuntime(rec.Duration()), err)
		return rec, err
	}

	if r.Bus != nil {
		for _, o := range res.Outputs {
			r.Bus.Publish(events.LayerUpdated{Layer: o.Layer, Path: o.Path, RunID: rec.ID, Step: name, Time: rec.End})
		}
	}
	r.logf("info", "run %s: step %s finished in %s", rec.ID, name, FormatRuntime(rec.Duration()))
	if r.Log != nil && len(rec.Counts) > 0 {
		fields := make(map[string]any, len(rec.Counts)+1)
		for k, v := range rec.Counts {
			fields[k] = v
		}
		fields["run_id"] = rec.ID
		r.Log.Debugw("step counts", fields)
	}
	return rec, nil
}

// call runs fn and converts a panic into an error.
func (r *Runner) call(ctx context.Context, fn StepFunc) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			if r.Monitor != nil {
				r.Monitor.CapturePanic(p)
			}
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

func (r *Runner) logf(level, format string, args ...any) {
	if r.Log == nil {
		return
	}
	switch level {
	case "error":
		r.Log.Errorf(format, args...)
	case "warn":
		r.Log.Warnf(format, args...)
	default:
		r.Log.Infof(format, args...)
	}
}

// FormatRuntime renders d as HH:MM:SS, truncated to whole seconds.
func FormatRuntime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}
