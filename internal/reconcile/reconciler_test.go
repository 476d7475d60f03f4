package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/p-n-ai/study-tracker/internal/curriculum"
	"github.com/p-n-ai/study-tracker/internal/progress"
)

// flakyStore wraps a MemoryStore and fails on demand.
type flakyStore struct {
	*progress.MemoryStore
	failGet atomic.Bool
	failPut atomic.Bool
	gets    atomic.Int64
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: progress.NewMemoryStore()}
}

func (s *flakyStore) Get(ctx context.Context, key string) (progress.Record, bool, error) {
	s.gets.Add(1)
	if s.failGet.Load() {
		return progress.Record{}, false, errors.New("network down")
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *flakyStore) Put(ctx context.Context, key string, rec progress.Record) error {
	if s.failPut.Load() {
		return errors.New("network down")
	}
	return s.MemoryStore.Put(ctx, key, rec)
}

func testCurriculum(t *testing.T) *curriculum.Store {
	t.Helper()
	store, err := curriculum.NewStore([]curriculum.Subject{
		{
			ID: "S1", Subject: "English Essay",
			Topics: []curriculum.Topic{
				{ID: "T1", Title: "Argumentative", Subtopics: []curriculum.Subtopic{
					{ID: "ST1", Title: "Thesis", Progress: progress.StatusNotStarted},
					{ID: "ST2", Title: "Evidence", Notes: "baseline", TargetTime: 20, RemainingTime: 600},
				}},
			},
		},
		{
			ID: "S2", Subject: "Current Affairs",
			Topics: []curriculum.Topic{
				{ID: "T1", Title: "Economy", Subtopics: []curriculum.Subtopic{
					{ID: "CA-1", Title: "Inflation"},
				}},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func newTestReconciler(t *testing.T) (*Reconciler, *progress.Ledger, *flakyStore) {
	t.Helper()
	store := newFlakyStore()
	ledger := progress.NewLedger(store)
	r := New(testCurriculum(t), ledger, WithConcurrency(4))
	if _, err := r.BuildView(t.Context()); err != nil {
		t.Fatalf("BuildView() error = %v", err)
	}
	return r, ledger, store
}

func TestBuildView_OrderAndBaseline(t *testing.T) {
	r, _, store := newTestReconciler(t)
	v := r.View()

	if len(v.Subjects) != 2 || v.Subjects[0].ID != "S1" || v.Subjects[1].ID != "S2" {
		t.Fatalf("subjects out of order: %+v", v.Subjects)
	}
	sts := v.Subjects[0].Topics[0].Subtopics
	if sts[0].ID != "ST1" || sts[1].ID != "ST2" {
		t.Errorf("subtopics out of order: %s, %s", sts[0].ID, sts[1].ID)
	}
	if sts[1].Notes != "baseline" || sts[1].TargetTime != 20 || sts[1].RemainingTime != 600 {
		t.Errorf("ST2 = %+v, want baseline values", sts[1])
	}
	if sts[1].WordCount != 1 {
		t.Errorf("ST2 WordCount = %d, want 1", sts[1].WordCount)
	}
	if v.Degraded {
		t.Error("view should not be degraded")
	}
	if got := store.gets.Load(); got != 3 {
		t.Errorf("ledger reads = %d, want one per subtopic (3)", got)
	}
}

func TestUpdateProgress_Scenario(t *testing.T) {
	r, ledger, _ := newTestReconciler(t)
	ctx := t.Context()

	sv, ok := r.View().Subtopic("S1", "T1", "ST1")
	if !ok || sv.Progress != progress.StatusNotStarted {
		t.Fatalf("initial ST1 = %+v", sv)
	}

	sv, err := r.UpdateProgress(ctx, "S1", "T1", "ST1", "Completed")
	if err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	if sv.Progress != progress.StatusCompleted {
		t.Errorf("returned Progress = %q", sv.Progress)
	}
	if sv.Sync[FieldProgress].State != StateConfirmed {
		t.Errorf("sync = %+v, want confirmed", sv.Sync)
	}

	v := r.View()
	got, _ := v.Subtopic("S1", "T1", "ST1")
	if got.Progress != progress.StatusCompleted {
		t.Errorf("view Progress = %q, want Completed", got.Progress)
	}
	if v.Subjects[0].Topics[0].Percent != 50 {
		t.Errorf("topic percent = %v, want 50", v.Subjects[0].Topics[0].Percent)
	}

	rec, exists, err := ledger.Lookup(ctx, "ST1")
	if err != nil || !exists {
		t.Fatalf("Lookup() exists = %v, err = %v", exists, err)
	}
	if rec.Progress != progress.StatusCompleted {
		t.Errorf("ledger Progress = %q", rec.Progress)
	}
}

func TestEdits_NoFieldLoss(t *testing.T) {
	r, ledger, _ := newTestReconciler(t)
	ctx := t.Context()

	if _, err := r.UpdateNotes(ctx, "S1", "T1", "ST1", "A"); err != nil {
		t.Fatalf("UpdateNotes() error = %v", err)
	}
	if _, err := r.UpdateProgress(ctx, "S1", "T1", "ST1", "Completed"); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}

	rec, _ := ledger.Load(ctx, "ST1")
	if rec.Notes != "A" || rec.Progress != progress.StatusCompleted {
		t.Errorf("ledger = %+v, want notes A and Completed", rec)
	}
}

func TestEdits_SeedFromBaseline(t *testing.T) {
	r, ledger, _ := newTestReconciler(t)
	ctx := t.Context()

	sv, err := r.UpdateProgress(ctx, "S1", "T1", "ST2", "In Progress")
	if err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	if sv.Notes != "baseline" || sv.TargetTime != 20 {
		t.Errorf("view = %+v, baseline fields should survive", sv)
	}

	rec, _ := ledger.Load(ctx, "ST2")
	if rec.Notes != "baseline" || rec.TargetTime != 20 || rec.Progress != progress.StatusInProgress {
		t.Errorf("ledger = %+v, want record seeded from the baseline", rec)
	}
}

func TestUpdateTargetTime(t *testing.T) {
	r, ledger, _ := newTestReconciler(t)

	sv, err := r.UpdateTargetTime(t.Context(), "S2", "T1", "CA-1", 45)
	if err != nil {
		t.Fatalf("UpdateTargetTime() error = %v", err)
	}
	if sv.TargetTime != 45 || sv.RemainingTime != 45*60 {
		t.Errorf("view = %+v", sv)
	}
	rec, _ := ledger.Load(t.Context(), "CA-1")
	if rec.RemainingTime != 2700 {
		t.Errorf("ledger RemainingTime = %d, want 2700", rec.RemainingTime)
	}
}

func TestUpdateTargetTime_Overflow(t *testing.T) {
	r, ledger, _ := newTestReconciler(t)
	ctx := t.Context()

	for _, minutes := range []int{1 << 62, progress.MaxTargetTime + 1} {
		if _, err := r.UpdateTargetTime(ctx, "S2", "T1", "CA-1", minutes); !errors.Is(err, ErrValidation) {
			t.Errorf("UpdateTargetTime(%d) error = %v, want ErrValidation", minutes, err)
		}
	}
	if _, exists, _ := ledger.Lookup(ctx, "CA-1"); exists {
		t.Error("rejected target must not write")
	}
	if st := r.SyncState("CA-1"); len(st) != 0 {
		t.Errorf("sync state = %+v, want none for a rejected edit", st)
	}
}

func TestEdits_Validation(t *testing.T) {
	r, ledger, _ := newTestReconciler(t)
	ctx := t.Context()

	if _, err := r.UpdateProgress(ctx, "S1", "T1", "ST1", "Done"); !errors.Is(err, ErrValidation) {
		t.Errorf("UpdateProgress(Done) error = %v, want ErrValidation", err)
	}
	if _, err := r.UpdateTargetTime(ctx, "S1", "T1", "ST1", -5); !errors.Is(err, ErrValidation) {
		t.Errorf("UpdateTargetTime(-5) error = %v, want ErrValidation", err)
	}
	if _, err := r.UpdateNotes(ctx, "", "T1", "ST1", "x"); !errors.Is(err, ErrValidation) {
		t.Errorf("UpdateNotes(no subject) error = %v, want ErrValidation", err)
	}
	if _, err := r.UpdateNotes(ctx, "S2", "T1", "ST1", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateNotes(wrong subject) error = %v, want ErrNotFound", err)
	}

	if _, exists, _ := ledger.Lookup(ctx, "ST1"); exists {
		t.Error("rejected edits must not write")
	}
}

func TestEdits_LegacyPendingAccepted(t *testing.T) {
	r, ledger, _ := newTestReconciler(t)

	if _, err := r.UpdateProgress(t.Context(), "S1", "T1", "ST1", "Pending"); err != nil {
		t.Fatalf("UpdateProgress(Pending) error = %v", err)
	}
	rec, _ := ledger.Load(t.Context(), "ST1")
	if rec.Progress != progress.StatusNotStarted {
		t.Errorf("stored Progress = %q, want %q", rec.Progress, progress.StatusNotStarted)
	}
}

func TestEdits_FailedWriteKeepsOptimisticValue(t *testing.T) {
	r, _, store := newTestReconciler(t)
	store.failPut.Store(true)

	sv, err := r.UpdateNotes(t.Context(), "S1", "T1", "ST1", "unsaved")
	if !errors.Is(err, progress.ErrStoreUnavailable) {
		t.Fatalf("UpdateNotes() error = %v, want ErrStoreUnavailable", err)
	}
	if sv.Notes != "unsaved" {
		t.Errorf("Notes = %q, want optimistic value kept", sv.Notes)
	}
	if st := sv.Sync[FieldNotes]; st.State != StateFailed || st.Error == "" {
		t.Errorf("sync = %+v, want failed with error", st)
	}

	// A later rebuild keeps the unsaved value visible.
	if _, err := r.BuildView(t.Context()); err != nil {
		t.Fatalf("BuildView() error = %v", err)
	}
	got, _ := r.View().Subtopic("S1", "T1", "ST1")
	if got.Notes != "unsaved" || got.Sync[FieldNotes].State != StateFailed {
		t.Errorf("after rebuild = %+v", got)
	}

	// Retrying once the store is back confirms it.
	store.failPut.Store(false)
	sv, err = r.UpdateNotes(t.Context(), "S1", "T1", "ST1", "unsaved")
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if sv.Sync[FieldNotes].State != StateConfirmed {
		t.Errorf("sync after retry = %+v", sv.Sync)
	}
}

func TestBuildView_LookupFailureFallsBack(t *testing.T) {
	r, _, store := newTestReconciler(t)

	if _, err := r.UpdateNotes(t.Context(), "S1", "T1", "ST1", "saved"); err != nil {
		t.Fatalf("UpdateNotes() error = %v", err)
	}

	store.failGet.Store(true)
	v, err := r.BuildView(t.Context())
	if err != nil {
		t.Fatalf("BuildView() error = %v", err)
	}
	if !v.Degraded {
		t.Error("view should be degraded")
	}
	sv, _ := v.Subtopic("S1", "T1", "ST1")
	if sv.Notes != "saved" {
		t.Errorf("Notes = %q, want last known value", sv.Notes)
	}
	if sv.LoadError == "" {
		t.Error("LoadError should be set")
	}
	other, _ := v.Subtopic("S1", "T1", "ST2")
	if other.Notes != "baseline" {
		t.Errorf("ST2 Notes = %q, want baseline fallback", other.Notes)
	}
}

func TestBuildView_Canceled(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := r.BuildView(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("BuildView() error = %v, want context.Canceled", err)
	}
}

func TestView_PrioritySplit(t *testing.T) {
	r, _, _ := newTestReconciler(t)

	v := r.View()
	if len(v.Priority) != 0 || len(v.ToCover) != 2 {
		t.Errorf("before onboarding: priority %v, toCover %v", v.Priority, v.ToCover)
	}

	if err := r.Session().Complete([]string{"current affairs"}, 3); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	v = r.View()
	if len(v.Priority) != 1 || v.Priority[0] != "S2" {
		t.Errorf("Priority = %v, want [S2]", v.Priority)
	}
	if len(v.ToCover) != 1 || v.ToCover[0] != "S1" {
		t.Errorf("ToCover = %v, want [S1]", v.ToCover)
	}

	r.Session().Reset()
	if v := r.View(); len(v.Priority) != 0 {
		t.Errorf("after Reset() Priority = %v", v.Priority)
	}
}

func TestOnRefresh(t *testing.T) {
	r, _, _ := newTestReconciler(t)

	var mu sync.Mutex
	var got []Refresh
	cancel := r.OnRefresh(func(ev Refresh) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	if _, err := r.UpdateProgress(t.Context(), "S1", "T1", "ST1", "In Progress"); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	cancel()
	if _, err := r.BuildView(t.Context()); err != nil {
		t.Fatalf("BuildView() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("refreshes = %d, want 1", len(got))
	}
	if got[0].SubtopicID != "ST1" || got[0].Version == "" {
		t.Errorf("refresh = %+v", got[0])
	}
}

func TestEdits_ConcurrentSameSubtopic(t *testing.T) {
	r, ledger, _ := newTestReconciler(t)
	ctx := t.Context()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := r.UpdateNotes(ctx, "S1", "T1", "ST1", "notes"); err != nil {
			t.Errorf("UpdateNotes() error = %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := r.UpdateTargetTime(ctx, "S1", "T1", "ST1", 15); err != nil {
			t.Errorf("UpdateTargetTime() error = %v", err)
		}
	}()
	wg.Wait()

	rec, _ := ledger.Load(ctx, "ST1")
	if rec.Notes != "notes" || rec.TargetTime != 15 || rec.RemainingTime != 900 {
		t.Errorf("ledger = %+v, want both edits applied", rec)
	}
}

func TestBuildView_InvalidStoredRecord(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "progress.json")
	doc := `{"subtopic_ST1":{"notes":"kept","progress":"Started","targetTime":10,"remainingTime":300}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := progress.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ledger := progress.NewLedger(store)
	r := New(testCurriculum(t), ledger)

	v, err := r.BuildView(ctx)
	if err != nil {
		t.Fatalf("BuildView() error = %v", err)
	}
	sv, _ := v.Subtopic("S1", "T1", "ST1")
	if sv.Progress != progress.StatusNotStarted {
		t.Errorf("Progress = %q, want baseline Not Started", sv.Progress)
	}
	if sv.Notes != "kept" || sv.TargetTime != 10 || sv.RemainingTime != 300 {
		t.Errorf("valid stored fields lost: %+v", sv)
	}
	if sv.LoadError == "" || !v.Degraded {
		t.Errorf("LoadError = %q, Degraded = %v; want the bad record reported", sv.LoadError, v.Degraded)
	}

	if _, err := r.UpdateNotes(ctx, "S1", "T1", "ST1", "fixed"); err != nil {
		t.Fatalf("UpdateNotes() error = %v", err)
	}
	rec, err := ledger.Load(ctx, "ST1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := progress.Record{Notes: "fixed", Progress: progress.StatusNotStarted, TargetTime: 10, RemainingTime: 300}
	if rec != want {
		t.Errorf("stored = %+v, want %+v", rec, want)
	}

	v = r.View()
	if sv, _ := v.Subtopic("S1", "T1", "ST1"); sv.LoadError != "" || v.Degraded {
		t.Errorf("after repair LoadError = %q, Degraded = %v", sv.LoadError, v.Degraded)
	}
}
