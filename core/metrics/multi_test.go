package metrics

import "testing"

// TestMultiSink ensures events are forwarded to all sinks.

type recordSink struct {
	count int
}

func (r *recordSink) RecordRun(RunEvent) error {
	r.count++
	return nil
}

func (r *recordSink) RecordLayerSize(string, int) error {
	r.count++
	return nil
}

// runOnly implements only the required interface.
type runOnly struct{ count int }

func (r *runOnly) RecordRun(RunEvent) error {
	r.count++
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	s3 := &runOnly{}
	m := NewMultiSink(s1, s2, s3)
	if err := m.RecordRun(RunEvent{Step: "stormwater"}); err != nil {
		t.Fatalf("record run: %v", err)
	}
	if err := m.RecordLayerSize("dac", 10); err != nil {
		t.Fatalf("record layer size: %v", err)
	}
	if err := m.RecordRequest(RequestEvent{Route: "/api/map", Code: 200}); err != nil {
		t.Fatalf("record request: %v", err)
	}
	if s1.count != 2 || s2.count != 2 || s3.count != 1 {
		t.Fatalf("events not forwarded: %d %d %d", s1.count, s2.count, s3.count)
	}
}

type closingSink struct {
	runOnly
	closed bool
}

func (c *closingSink) Close() { c.closed = true }

func TestMultiSink_Close(t *testing.T) {
	c := &closingSink{}
	m := NewMultiSink(&runOnly{}, c)
	m.Close()
	if !c.closed {
		t.Fatal("closable sink was not closed")
	}
}
