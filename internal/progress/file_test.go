package progress_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/study-tracker/internal/progress"
)

func TestFileStore(t *testing.T) {
	store, err := progress.NewFileStore(filepath.Join(t.TempDir(), "nested", "progress.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	exerciseStore(t, store)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	ctx := t.Context()

	store, err := progress.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	want := progress.Record{Notes: "A", Progress: progress.StatusCompleted, TargetTime: 1, RemainingTime: 60}
	if err := store.Put(ctx, "subtopic_ST1", want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	reopened, err := progress.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore(reopen) error = %v", err)
	}
	got, ok, err := reopened.Get(ctx, "subtopic_ST1")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestFileStore_LegacyPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	legacy := `{"subtopic_ST1":{"notes":"old","progress":"Pending"}}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := progress.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	got, ok, err := store.Get(t.Context(), "subtopic_ST1")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if got.Progress != progress.StatusNotStarted {
		t.Errorf("Progress = %q, want %q", got.Progress, progress.StatusNotStarted)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := progress.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if _, _, err := store.Get(t.Context(), "subtopic_ST1"); err == nil {
		t.Error("Get() on a corrupt file should fail")
	}
	if err := store.Ping(t.Context()); err == nil {
		t.Error("Ping() on a corrupt file should fail")
	}
}
