// Package runlog defines the ledger of pipeline runs.
package runlog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Record captures one pipeline step execution.
type Record struct {
	ID      string         `json:"id"`
	Step    string         `json:"step"`
	Start   time.Time      `json:"start"`
	End     time.Time      `json:"end"`
	Inputs  []string       `json:"inputs,omitempty"`
	Outputs []string       `json:"outputs,omitempty"`
	Counts  map[string]int `json:"counts,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Duration is the wall time of the run.
func (r Record) Duration() time.Duration { return r.End.Sub(r.Start) }

// Failed reports whether the run ended with an error.
func (r Record) Failed() bool { return r.Error != "" }

// Query defines filters for retrieving records. Zero values match everything.
type Query struct {
	Step  string
	Start time.Time
	End   time.Time
	// Limit keeps the most recent records when positive.
	Limit int
}

// Match reports whether rec satisfies the step and time filters.
func (q Query) Match(rec Record) bool {
	if q.Step != "" && rec.Step != q.Step {
		return false
	}
	if !q.Start.IsZero() && rec.Start.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && rec.Start.After(q.End) {
		return false
	}
	return true
}

// Apply filters recs, orders them by start time and applies the limit.
func (q Query) Apply(recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// MemoryStore keeps records in memory.
type MemoryStore struct {
	mu   sync.Mutex
	recs []Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return q.Apply(s.recs), nil
}

func (s *MemoryStore) Close() error { return nil }
