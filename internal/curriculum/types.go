package curriculum

import "github.com/p-n-ai/study-tracker/internal/progress"

// Subject is one exam subject, e.g. "English Essay".
type Subject struct {
	ID      string  `json:"id" yaml:"id"`
	Subject string  `json:"subject" yaml:"subject"`
	Marks   float64 `json:"marks" yaml:"marks"`
	Code    string  `json:"code" yaml:"code"`
	Topics  []Topic `json:"topics" yaml:"topics"`
}

// Topic groups subtopics within a subject.
type Topic struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Subtopics []Subtopic `json:"subtopics" yaml:"subtopics"`
}

// Subtopic is the unit progress is tracked against. The baseline fields are
// optional and only used when the ledger has nothing for the subtopic.
type Subtopic struct {
	ID            string          `json:"id" yaml:"id"`
	Title         string          `json:"title" yaml:"title"`
	Notes         string          `json:"notes,omitempty" yaml:"notes,omitempty"`
	Progress      progress.Status `json:"progress,omitempty" yaml:"progress,omitempty"`
	TargetTime    int             `json:"targetTime,omitempty" yaml:"targetTime,omitempty"`
	RemainingTime int             `json:"remainingTime,omitempty" yaml:"remainingTime,omitempty"`
}

// Baseline returns the subtopic's curriculum-side record.
func (s Subtopic) Baseline() progress.Record {
	return progress.Record{
		Notes:         s.Notes,
		Progress:      s.Progress,
		TargetTime:    s.TargetTime,
		RemainingTime: s.RemainingTime,
	}
}

// Address is the composite id of a subtopic.
type Address struct {
	SubjectID  string `json:"subjectId"`
	TopicID    string `json:"topicId"`
	SubtopicID string `json:"subtopicId"`
}

// cloneSubjects deep-copies a subject list.
func cloneSubjects(in []Subject) []Subject {
	out := make([]Subject, len(in))
	for i, s := range in {
		out[i] = s
		out[i].Topics = make([]Topic, len(s.Topics))
		for j, t := range s.Topics {
			out[i].Topics[j] = t
			out[i].Topics[j].Subtopics = append([]Subtopic(nil), t.Subtopics...)
		}
	}
	return out
}
