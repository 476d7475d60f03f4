package report

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/study-tracker/internal/progress"
	"github.com/p-n-ai/study-tracker/internal/reconcile"
)

func testView() reconcile.View {
	return reconcile.View{
		Version:  "abc",
		Priority: []string{"S2"},
		ToCover:  []string{"S1"},
		Subjects: []reconcile.SubjectView{
			{
				ID: "S1", Subject: "English Essay", Code: "ENG", Marks: 100, Percent: 33.333,
				Topics: []reconcile.TopicView{{
					ID: "T1", Title: "Argumentative",
					Subtopics: []reconcile.SubtopicView{
						{ID: "ST1", Title: "Thesis", Progress: progress.StatusCompleted, TargetTime: 30, RemainingTime: 1800, WordCount: 12},
						{ID: "ST2", Title: "Evidence", Progress: progress.StatusNotStarted,
							Sync: map[reconcile.Field]reconcile.SyncState{reconcile.FieldNotes: {State: reconcile.StateFailed, Error: "down"}}},
					},
				}},
			},
			{ID: "S2", Subject: "Current Affairs", Code: "CA", Marks: 100},
		},
	}
}

func TestWriteWorkbook(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, testView()); err != nil {
		t.Fatalf("WriteWorkbook() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	subjects, err := f.GetRows(SheetSubjects)
	if err != nil {
		t.Fatalf("GetRows(%s) error = %v", SheetSubjects, err)
	}
	if len(subjects) != 3 {
		t.Fatalf("subject rows = %d, want header + 2", len(subjects))
	}
	if subjects[1][1] != "English Essay" || subjects[1][4] != "33.3" || subjects[1][5] != "no" {
		t.Errorf("S1 row = %v", subjects[1])
	}
	if subjects[2][5] != "yes" {
		t.Errorf("S2 priority = %q, want yes", subjects[2][5])
	}

	subtopics, err := f.GetRows(SheetSubtopics)
	if err != nil {
		t.Fatalf("GetRows(%s) error = %v", SheetSubtopics, err)
	}
	if len(subtopics) != 3 {
		t.Fatalf("subtopic rows = %d, want header + 2", len(subtopics))
	}
	if subtopics[1][2] != "ST1" || subtopics[1][4] != "Completed" || subtopics[1][5] != "30" {
		t.Errorf("ST1 row = %v", subtopics[1])
	}
	if subtopics[2][8] != "failed" {
		t.Errorf("ST2 sync = %q, want failed", subtopics[2][8])
	}
}

func TestSyncSummary(t *testing.T) {
	tests := []struct {
		name string
		st   reconcile.SubtopicView
		want string
	}{
		{"clean", reconcile.SubtopicView{}, ""},
		{"confirmed", reconcile.SubtopicView{Sync: map[reconcile.Field]reconcile.SyncState{reconcile.FieldNotes: {State: reconcile.StateConfirmed}}}, ""},
		{"pending", reconcile.SubtopicView{Sync: map[reconcile.Field]reconcile.SyncState{reconcile.FieldProgress: {State: reconcile.StatePending}}}, "pending"},
		{"failed wins", reconcile.SubtopicView{Sync: map[reconcile.Field]reconcile.SyncState{
			reconcile.FieldProgress: {State: reconcile.StatePending},
			reconcile.FieldNotes:    {State: reconcile.StateFailed},
		}}, "failed"},
		{"load error", reconcile.SubtopicView{LoadError: "timeout"}, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := syncSummary(tt.st); got != tt.want {
				t.Errorf("syncSummary() = %q, want %q", got, tt.want)
			}
		})
	}
}
