package curriculum

import "strings"

// Result limits per category.
const (
	MaxSubjectResults  = 5
	MaxTopicResults    = 5
	MaxSubtopicResults = 10
)

// SubjectHit is a subject whose display name matched.
type SubjectHit struct {
	SubjectID string `json:"subjectId"`
	Subject   string `json:"subject"`
}

// TopicHit is a topic whose title matched.
type TopicHit struct {
	SubjectID string `json:"subjectId"`
	Subject   string `json:"subject"`
	TopicID   string `json:"topicId"`
	Title     string `json:"title"`
}

// SubtopicHit is a subtopic whose title or id matched.
type SubtopicHit struct {
	Address
	Subject    string `json:"subject"`
	TopicTitle string `json:"topicTitle"`
	Title      string `json:"title"`
}

// SearchResults groups matches by kind, in curriculum order.
type SearchResults struct {
	Subjects  []SubjectHit  `json:"subjects"`
	Topics    []TopicHit    `json:"topics"`
	Subtopics []SubtopicHit `json:"subtopics"`
}

// Search does a case-insensitive substring match over subject names, topic
// titles, subtopic titles and subtopic ids. A blank query matches nothing.
// Entries with an empty name or title are skipped.
func (s *Store) Search(query string) SearchResults {
	res := SearchResults{
		Subjects:  []SubjectHit{},
		Topics:    []TopicHit{},
		Subtopics: []SubtopicHit{},
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return res
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subjects {
		if sub.Subject == "" {
			continue
		}
		if len(res.Subjects) < MaxSubjectResults && strings.Contains(strings.ToLower(sub.Subject), q) {
			res.Subjects = append(res.Subjects, SubjectHit{SubjectID: sub.ID, Subject: sub.Subject})
		}

		for _, t := range sub.Topics {
			if t.Title == "" {
				continue
			}
			if len(res.Topics) < MaxTopicResults && strings.Contains(strings.ToLower(t.Title), q) {
				res.Topics = append(res.Topics, TopicHit{SubjectID: sub.ID, Subject: sub.Subject, TopicID: t.ID, Title: t.Title})
			}

			for _, st := range t.Subtopics {
				if st.Title == "" || len(res.Subtopics) >= MaxSubtopicResults {
					continue
				}
				if strings.Contains(strings.ToLower(st.Title), q) || strings.Contains(strings.ToLower(st.ID), q) {
					res.Subtopics = append(res.Subtopics, SubtopicHit{
						Address:    Address{SubjectID: sub.ID, TopicID: t.ID, SubtopicID: st.ID},
						Subject:    sub.Subject,
						TopicTitle: t.Title,
						Title:      st.Title,
					})
				}
			}
		}
	}
	return res
}
