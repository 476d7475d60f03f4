package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/study-tracker/internal/platform/config"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		ready      error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "readyz returns 503 when the ledger is down",
			path:       "/readyz",
			ready:      errors.New("connection refused"),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"unavailable"}`,
		},
		{
			name:       "healthz ignores the ledger",
			path:       "/healthz",
			ready:      errors.New("connection refused"),
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(stubPinger{err: tt.ready})
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

const sampleCurriculum = `[{"id":"S1","subject":"English Essay","marks":100,"code":"ENG","topics":[
  {"id":"T1","title":"Argumentative","subtopics":[{"id":"ST1","title":"Thesis"}]}]}]`

func TestNewApp_LocalBackends(t *testing.T) {
	dir := t.TempDir()
	curPath := filepath.Join(dir, "subjects.json")
	if err := os.WriteFile(curPath, []byte(sampleCurriculum), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, backend := range []string{config.BackendMemory, config.BackendFile, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := &config.Config{
				Ledger: config.LedgerConfig{
					Backend:  backend,
					FilePath: filepath.Join(t.TempDir(), "progress.json"),
					SQLite:   filepath.Join(t.TempDir(), "progress.db"),
					Timeout:  config.DefaultLedgerTimeout,
				},
				Events:     config.EventsConfig{Sink: "none"},
				Curriculum: config.CurriculumConfig{Path: curPath},
				Reconcile:  config.ReconcileConfig{NoteDebounce: config.DefaultNoteDebounce, Concurrency: 2},
			}

			a, err := newApp(t.Context(), cfg)
			if err != nil {
				t.Fatalf("newApp() error = %v", err)
			}
			defer a.close()

			mux := newMux(a.ledger)
			a.api.Register(mux)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != http.StatusOK {
				t.Errorf("readyz = %d, want 200", rec.Code)
			}

			rec = httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/view", nil))
			if rec.Code != http.StatusOK {
				t.Errorf("GET /api/view = %d, want 200", rec.Code)
			}
		})
	}
}

func TestNewApp_MissingCurriculum(t *testing.T) {
	cfg := &config.Config{
		Ledger:     config.LedgerConfig{Backend: config.BackendMemory, Timeout: config.DefaultLedgerTimeout},
		Events:     config.EventsConfig{Sink: "none"},
		Curriculum: config.CurriculumConfig{Path: filepath.Join(t.TempDir(), "missing.json")},
	}
	if _, err := newApp(t.Context(), cfg); err == nil {
		t.Error("newApp() should fail without a curriculum")
	}
}
