package runlog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/ghsdash/core/runlog"
)

func sampleRecords() []runlog.Record {
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	return []runlog.Record{
		{ID: "a", Step: "stormwater", Start: base, End: base.Add(time.Second), Counts: map[string]int{"schools": 10}},
		{ID: "b", Step: "hazards", Start: base.Add(time.Minute), End: base.Add(2 * time.Minute), Error: "missing fields: [OHEI_Class]"},
		{ID: "c", Step: "stormwater", Start: base.Add(time.Hour), End: base.Add(time.Hour + time.Second)},
	}
}

func exerciseStore(t *testing.T, store runlog.Store) {
	t.Helper()
	ctx := context.Background()
	for _, r := range sampleRecords() {
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	out, err := store.Query(ctx, runlog.Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 3 || out[0].ID != "a" || out[2].ID != "c" {
		t.Fatalf("unexpected order %+v", out)
	}
	if out[0].Counts["schools"] != 10 {
		t.Fatalf("counts lost: %+v", out[0])
	}
	if !out[1].Failed() {
		t.Fatalf("error lost: %+v", out[1])
	}

	out, err = store.Query(ctx, runlog.Query{Step: "stormwater", Limit: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].ID != "c" {
		t.Fatalf("expected latest stormwater run, got %+v", out)
	}
}

func TestSQLiteStore_PersistQuery(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	exerciseStore(t, store)
}

func TestRotatingJSONLStore_Query(t *testing.T) {
	store, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "logs", "runs.jsonl"), 1, 2, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	exerciseStore(t, store)
}

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 3, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	rec := runlog.Record{Step: "snap", Start: time.Now(), Error: strings.Repeat("x", 64*1024)}
	for i := 0; i < 40; i++ {
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	backups, _ := filepath.Glob(backupPattern(path))
	if len(backups) == 0 {
		t.Fatalf("expected rotated files")
	}
	out, err := store.Query(context.Background(), runlog.Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected records across backups")
	}
}

func TestOpen(t *testing.T) {
	if _, err := Open(Config{Backend: "redis"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	s, err := Open(Config{Backend: "memory"})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := s.(*runlog.MemoryStore); !ok {
		t.Fatalf("expected MemoryStore, got %T", s)
	}
	s, err = Open(Config{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "r.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	_ = s.Close()
}
