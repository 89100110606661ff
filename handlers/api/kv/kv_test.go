package kv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sparkpad-server/stores/memory"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newHandler() (http.Handler, Modes) {
	modes := Modes{Disk: memory.NewStore(0), Memory: memory.NewStore(0)}
	r := chi.NewRouter()
	r.Get("/api/kv", HandleGet(modes))
	r.Post("/api/kv", HandlePut(modes))
	r.Delete("/api/kv", HandleDelete(modes))
	return r, modes
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPutGetDelete(t *testing.T) {
	h, _ := newHandler()

	rec := do(h, http.MethodPost, "/api/kv?key=projects:list", `[{"id":"p1"}]`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("POST status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = do(h, http.MethodGet, "/api/kv?key=projects:list&mode=disk", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != `[{"id":"p1"}]` {
		t.Errorf("GET body = %q", rec.Body.String())
	}

	rec = do(h, http.MethodDelete, "/api/kv?key=projects:list", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = do(h, http.MethodGet, "/api/kv?key=projects:list", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	rec = do(h, http.MethodDelete, "/api/kv?key=projects:list", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestModesAreSeparate(t *testing.T) {
	h, modes := newHandler()

	do(h, http.MethodPost, "/api/kv?key=session&mode=memory", "volatile")

	if _, err := modes.Disk.Get(context.Background(), "session"); err == nil {
		t.Error("memory mode must not write to the disk store")
	}
	rec := do(h, http.MethodGet, "/api/kv?key=session&mode=memory", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "volatile" {
		t.Errorf("GET memory = %d %q", rec.Code, rec.Body.String())
	}
}

func TestBadRequests(t *testing.T) {
	h, _ := newHandler()

	tests := []struct {
		name   string
		method string
		target string
	}{
		{"missing key on get", http.MethodGet, "/api/kv"},
		{"missing key on post", http.MethodPost, "/api/kv?mode=disk"},
		{"missing key on delete", http.MethodDelete, "/api/kv"},
		{"unknown mode", http.MethodGet, "/api/kv?key=a&mode=tape"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.method, tt.target, "x")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}
