package curriculum_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/p-n-ai/study-tracker/internal/curriculum"
	"github.com/p-n-ai/study-tracker/internal/progress"
)

func openTestStore(t *testing.T) (*curriculum.Store, string) {
	t.Helper()
	path := setupTestCurriculum(t, "subjects.json", testDocument)
	store, err := curriculum.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return store, path
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	store, _ := openTestStore(t)

	snap := store.Snapshot()
	snap.Subjects[0].Topics[0].Subtopics[0].Title = "mutated"
	snap.Subjects[0].Topics = nil

	again := store.Snapshot()
	if again.Subjects[0].Topics[0].Subtopics[0].Title != "Thesis statements" {
		t.Error("mutating a snapshot changed the store")
	}
	if again.Version != snap.Version {
		t.Error("version changed without an update")
	}
	if len(again.Version) != 32 {
		t.Errorf("Version = %q, want 32 hex chars", again.Version)
	}
}

func TestStore_Find(t *testing.T) {
	store, _ := openTestStore(t)

	st, err := store.Find("S1", "T1", "ST2")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if st.Title != "Counter arguments" {
		t.Errorf("Title = %q", st.Title)
	}

	for _, addr := range [][3]string{
		{"S1", "T2", "ST2"},
		{"S2", "T1", "ST1"},
		{"S1", "T1", "missing"},
	} {
		if _, err := store.Find(addr[0], addr[1], addr[2]); !errors.Is(err, curriculum.ErrNotFound) {
			t.Errorf("Find(%v) error = %v, want ErrNotFound", addr, err)
		}
	}
}

func TestStore_Locate(t *testing.T) {
	store, _ := openTestStore(t)

	addr, ok := store.Locate("PA-01")
	if !ok {
		t.Fatal("Locate(PA-01) not found")
	}
	if addr.SubjectID != "S2" || addr.TopicID != "T1" {
		t.Errorf("Locate(PA-01) = %+v", addr)
	}
	if _, ok := store.Locate("nope"); ok {
		t.Error("Locate(nope) should not be found")
	}
}

func TestStore_Update(t *testing.T) {
	store, path := openTestStore(t)
	before := store.Version()

	st, err := store.Update(t.Context(), curriculum.UpdateRequest{
		SubjectID: "S1", TopicID: "T1", SubtopicID: "ST2",
		Notes: "new notes", Progress: "Completed",
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if st.Notes != "new notes" || st.Progress != progress.StatusCompleted {
		t.Errorf("Update() = %+v", st)
	}
	if store.Version() == before {
		t.Error("version should change after an update")
	}

	// Persisted to disk.
	reloaded, err := curriculum.Open(path)
	if err != nil {
		t.Fatalf("Open(reload) error = %v", err)
	}
	got, _ := reloaded.Find("S1", "T1", "ST2")
	if got.Notes != "new notes" || got.Progress != progress.StatusCompleted {
		t.Errorf("reloaded = %+v", got)
	}
	if reloaded.Version() != store.Version() {
		t.Error("reloaded version should match the in-memory version")
	}
}

func TestStore_UpdateEmptyNotesKept(t *testing.T) {
	store, _ := openTestStore(t)

	st, err := store.Update(t.Context(), curriculum.UpdateRequest{
		SubjectID: "S1", TopicID: "T1", SubtopicID: "ST1", Progress: "Not Started",
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if st.Notes != "curriculum note" {
		t.Errorf("Notes = %q, want the existing notes kept", st.Notes)
	}
	if st.Progress != progress.StatusNotStarted {
		t.Errorf("Progress = %q", st.Progress)
	}
}

func TestStore_UpdateErrors(t *testing.T) {
	store, _ := openTestStore(t)

	tests := []struct {
		name string
		req  curriculum.UpdateRequest
		want error
	}{
		{"missing subject", curriculum.UpdateRequest{TopicID: "T1", SubtopicID: "ST1", Progress: "Completed"}, curriculum.ErrInvalidUpdate},
		{"missing subtopic", curriculum.UpdateRequest{SubjectID: "S1", TopicID: "T1", Progress: "Completed"}, curriculum.ErrInvalidUpdate},
		{"bad progress", curriculum.UpdateRequest{SubjectID: "S1", TopicID: "T1", SubtopicID: "ST1", Progress: "Done"}, curriculum.ErrInvalidUpdate},
		{"legacy progress rejected", curriculum.UpdateRequest{SubjectID: "S1", TopicID: "T1", SubtopicID: "ST1", Progress: "Pending"}, curriculum.ErrInvalidUpdate},
		{"unknown subtopic", curriculum.UpdateRequest{SubjectID: "S1", TopicID: "T1", SubtopicID: "ZZ", Progress: "Completed"}, curriculum.ErrNotFound},
		{"wrong topic", curriculum.UpdateRequest{SubjectID: "S1", TopicID: "T2", SubtopicID: "ST1", Progress: "Completed"}, curriculum.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := store.Version()
			if _, err := store.Update(t.Context(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Update() error = %v, want %v", err, tt.want)
			}
			if store.Version() != before {
				t.Error("failed update changed the document")
			}
		})
	}
}

func TestStore_UpdateCanceled(t *testing.T) {
	store, _ := openTestStore(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := store.Update(ctx, curriculum.UpdateRequest{SubjectID: "S1", TopicID: "T1", SubtopicID: "ST1", Progress: "Completed"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Update() error = %v, want context.Canceled", err)
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	store, path := openTestStore(t)

	ids := []string{"ST1", "ST2"}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ids[i%2]
			if _, err := store.Update(context.Background(), curriculum.UpdateRequest{
				SubjectID: "S1", TopicID: "T1", SubtopicID: id, Progress: "Completed",
			}); err != nil {
				t.Errorf("Update(%s) error = %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	reloaded, err := curriculum.Open(path)
	if err != nil {
		t.Fatalf("Open(reload) error = %v", err)
	}
	for _, id := range ids {
		st, _ := reloaded.Find("S1", "T1", id)
		if st.Progress != progress.StatusCompleted {
			t.Errorf("%s progress = %q after concurrent writes", id, st.Progress)
		}
	}
}

func TestNewStore_InMemory(t *testing.T) {
	subjects, err := curriculum.Parse([]byte(testDocument), false)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	store, err := curriculum.NewStore(subjects)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	subjects[0].Subject = "changed by caller"
	if name, _ := store.SubjectName("S1"); name != "English Essay" {
		t.Errorf("SubjectName(S1) = %q, store should own its copy", name)
	}

	if _, err := store.Update(t.Context(), curriculum.UpdateRequest{
		SubjectID: "S2", TopicID: "T1", SubtopicID: "PA-01", Progress: "In Progress",
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
}
