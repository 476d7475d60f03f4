package reconcile

import (
	"maps"
	"time"

	"github.com/p-n-ai/study-tracker/internal/progress"
)

// Field names an editable subtopic field.
type Field string

const (
	FieldNotes      Field = "notes"
	FieldProgress   Field = "progress"
	FieldTargetTime Field = "targetTime"
)

// State is the persistence state of one edited field.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// SyncState reports whether the last edit of a field reached the ledger.
type SyncState struct {
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

// SubtopicView is the merged state of one subtopic.
type SubtopicView struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Notes         string              `json:"notes"`
	Progress      progress.Status     `json:"progress"`
	TargetTime    int                 `json:"targetTime"`
	RemainingTime int                 `json:"remainingTime"`
	WordCount     int                 `json:"wordCount"`
	Sync          map[Field]SyncState `json:"sync,omitempty"`
	LoadError     string              `json:"loadError,omitempty"`
}

// Record returns the ledger fields of the view.
func (v SubtopicView) Record() progress.Record {
	return progress.Record{
		Notes:         v.Notes,
		Progress:      v.Progress,
		TargetTime:    v.TargetTime,
		RemainingTime: v.RemainingTime,
	}
}

// TopicView is a topic with its merged subtopics.
type TopicView struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Percent   float64        `json:"percent"`
	Subtopics []SubtopicView `json:"subtopics"`
}

// SubjectView is a subject with its merged topics.
type SubjectView struct {
	ID      string      `json:"id"`
	Subject string      `json:"subject"`
	Code    string      `json:"code"`
	Marks   float64     `json:"marks"`
	Percent float64     `json:"percent"`
	Topics  []TopicView `json:"topics"`
}

// View is the merged view model in curriculum order.
type View struct {
	Version  string        `json:"version"`
	BuiltAt  time.Time     `json:"builtAt"`
	Degraded bool          `json:"degraded"`
	Subjects []SubjectView `json:"subjects"`
	Priority []string      `json:"priority"`
	ToCover  []string      `json:"toCover"`
}

// Subtopic finds a subtopic in the view.
func (v View) Subtopic(subjectID, topicID, subtopicID string) (SubtopicView, bool) {
	for _, s := range v.Subjects {
		if s.ID != subjectID {
			continue
		}
		for _, t := range s.Topics {
			if t.ID != topicID {
				continue
			}
			for _, st := range t.Subtopics {
				if st.ID == subtopicID {
					return st, true
				}
			}
		}
	}
	return SubtopicView{}, false
}

// split partitions subject ids into priority and to-cover lists, both in
// curriculum order.
func split(subjects []SubjectView, priorities []string) (priority, toCover []string) {
	priority, toCover = []string{}, []string{}
	for _, s := range subjects {
		matched := false
		for _, p := range priorities {
			if SameSubject(p, s.Subject) {
				matched = true
				break
			}
		}
		if matched {
			priority = append(priority, s.ID)
		} else {
			toCover = append(toCover, s.ID)
		}
	}
	return priority, toCover
}

// cloneView deep-copies the parts of a view callers may mutate.
func cloneView(v View) View {
	out := v
	out.Subjects = make([]SubjectView, len(v.Subjects))
	for i, s := range v.Subjects {
		out.Subjects[i] = s
		out.Subjects[i].Topics = make([]TopicView, len(s.Topics))
		for j, t := range s.Topics {
			out.Subjects[i].Topics[j] = t
			out.Subjects[i].Topics[j].Subtopics = make([]SubtopicView, len(t.Subtopics))
			for k, st := range t.Subtopics {
				st.Sync = maps.Clone(st.Sync)
				out.Subjects[i].Topics[j].Subtopics[k] = st
			}
		}
	}
	out.Priority = append([]string{}, v.Priority...)
	out.ToCover = append([]string{}, v.ToCover...)
	return out
}

// patch applies fn to the subtopic with the given id and refreshes the
// completion percentages.
func (v *View) patch(subtopicID string, fn func(*SubtopicView)) bool {
	found := false
	for i := range v.Subjects {
		for j := range v.Subjects[i].Topics {
			t := &v.Subjects[i].Topics[j]
			for k := range t.Subtopics {
				if t.Subtopics[k].ID == subtopicID {
					fn(&t.Subtopics[k])
					found = true
				}
			}
		}
	}
	if found {
		v.recount()
	}
	return found
}

// recount recomputes topic and subject completion percentages.
func (v *View) recount() {
	for i := range v.Subjects {
		var subjectDone, subjectTotal int
		for j := range v.Subjects[i].Topics {
			t := &v.Subjects[i].Topics[j]
			done := 0
			for _, st := range t.Subtopics {
				if st.Progress == progress.StatusCompleted {
					done++
				}
			}
			t.Percent = percent(done, len(t.Subtopics))
			subjectDone += done
			subjectTotal += len(t.Subtopics)
		}
		v.Subjects[i].Percent = percent(subjectDone, subjectTotal)
	}
}
