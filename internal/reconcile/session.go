package reconcile

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Onboarding limits.
const (
	MaxPrioritySubjects = 3
	MinCompletionMonths = 1
	MaxCompletionMonths = 12
)

// legacySubjectNames maps subject labels written by earlier deployments to
// the current display names. Keys are folded with foldName.
var legacySubjectNames = map[string]string{
	foldName("Essay"):                     "English Essay",
	foldName("Precis & Composition"):      "English (Precis & Composition)",
	foldName("Pakistan Affairs"):          "Pakistan Affairs",
	foldName("Current Affairs"):           "Current Affairs",
	foldName("Islamic Studies"):           "Islamic Studies",
	foldName("General Science & Ability"): "General Science & Ability",
}

var folder = cases.Fold()

// foldName is the comparison key for subject names.
func foldName(s string) string {
	return folder.String(norm.NFKC.String(strings.TrimSpace(s)))
}

// NormalizeSubjectName maps a legacy subject label onto its current display
// name. Unknown names come back trimmed and NFKC-normalized.
func NormalizeSubjectName(name string) string {
	if mapped, ok := legacySubjectNames[foldName(name)]; ok {
		return mapped
	}
	return norm.NFKC.String(strings.TrimSpace(name))
}

// SameSubject reports whether two subject names refer to the same subject,
// ignoring case and surrounding space.
func SameSubject(a, b string) bool {
	return foldName(a) == foldName(b)
}

// SessionState is the process-local onboarding state.
type SessionState struct {
	OnboardingComplete bool     `json:"onboardingComplete"`
	PrioritySubjects   []string `json:"prioritySubjects"`
	CompletionMonths   int      `json:"completionMonths"`
}

// Session holds onboarding state for the running process. It starts empty
// and Reset returns it there; ledger content is never touched.
type Session struct {
	mu    sync.RWMutex
	state SessionState
}

func NewSession() *Session {
	return &Session{state: SessionState{PrioritySubjects: []string{}}}
}

// Complete records onboarding. Priority names are trimmed, normalized and
// de-duplicated.
func (s *Session) Complete(priorities []string, months int) error {
	if months < MinCompletionMonths || months > MaxCompletionMonths {
		return fmt.Errorf("%w: completion months must be %d-%d, got %d", ErrValidation, MinCompletionMonths, MaxCompletionMonths, months)
	}

	names := make([]string, 0, len(priorities))
	for _, p := range priorities {
		name := NormalizeSubjectName(p)
		if name == "" {
			continue
		}
		dup := false
		for _, existing := range names {
			if SameSubject(existing, name) {
				dup = true
				break
			}
		}
		if !dup {
			names = append(names, name)
		}
	}
	if len(names) > MaxPrioritySubjects {
		return fmt.Errorf("%w: at most %d priority subjects, got %d", ErrValidation, MaxPrioritySubjects, len(names))
	}

	s.mu.Lock()
	s.state = SessionState{
		OnboardingComplete: true,
		PrioritySubjects:   names,
		CompletionMonths:   months,
	}
	s.mu.Unlock()
	return nil
}

// Reset clears all onboarding state together.
func (s *Session) Reset() {
	s.mu.Lock()
	s.state = SessionState{PrioritySubjects: []string{}}
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.PrioritySubjects = append([]string{}, s.state.PrioritySubjects...)
	return st
}
