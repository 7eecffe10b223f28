package runs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kilianp07/ghsdash/core/runlog"
)

func TestHandler_AuthAndFilters(t *testing.T) {
	store := runlog.NewMemoryStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, step := range []string{"snap", "hazards", "snap"} {
		if err := store.Append(context.Background(), runlog.Record{
			ID:    step + string(rune('0'+i)),
			Step:  step,
			Start: base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	h := NewHandler(store, "tok")

	req := httptest.NewRequest("GET", "/api/runs?step=snap&limit=1", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []runlog.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].ID != "snap2" {
		t.Fatalf("unexpected records %+v", out)
	}

	// unauthorized
	req = httptest.NewRequest("GET", "/api/runs", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}

	// bad parameter
	req = httptest.NewRequest("GET", "/api/runs?start=yesterday", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestHandler_EmptyIsArray(t *testing.T) {
	h := NewHandler(runlog.NewMemoryStore(), "")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/runs", nil))
	if got := rr.Body.String(); got != "[]\n" {
		t.Fatalf("body = %q", got)
	}
}

func TestHandler_JSONErrors(t *testing.T) {
	h := NewHandler(runlog.NewMemoryStore(), "tok")
	tests := []struct {
		name string
		url  string
		auth string
		code int
	}{
		{"missing token", "/api/runs", "", http.StatusUnauthorized},
		{"wrong token", "/api/runs", "Bearer tok2", http.StatusUnauthorized},
		{"token prefix", "/api/runs", "Bearer to", http.StatusUnauthorized},
		{"bad limit", "/api/runs?limit=-3", "Bearer tok", http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.url, nil)
		if tt.auth != "" {
			req.Header.Set("Authorization", tt.auth)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tt.code {
			t.Fatalf("%s: expected %d got %d", tt.name, tt.code, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("%s: content type %q", tt.name, ct)
		}
		var body errorBody
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body.Error == "" {
			t.Fatalf("%s: expected json error body, got %q", tt.name, rr.Body.String())
		}
	}
}
