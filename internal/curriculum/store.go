// Package curriculum holds the subject, topic and subtopic tree and its
// baseline progress values.
package curriculum

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/study-tracker/internal/progress"
)

var (
	// ErrNotFound is returned when a composite id does not resolve.
	ErrNotFound = errors.New("subtopic not found")
	// ErrInvalidUpdate is returned for write requests with missing ids or an
	// unrecognized progress value.
	ErrInvalidUpdate = errors.New("invalid subjectId, topicId, subtopicId, or progress")
)

// Snapshot is an immutable copy of the curriculum at one version.
type Snapshot struct {
	Subjects []Subject
	Version  string
}

// UpdateRequest is the body of the curriculum write endpoint.
type UpdateRequest struct {
	SubjectID  string `json:"subjectId"`
	TopicID    string `json:"topicId"`
	SubtopicID string `json:"subtopicId"`
	Notes      string `json:"notes"`
	Progress   string `json:"progress"`
}

// Store keeps the curriculum in memory and, when backed by a file, writes
// updates back to it.
type Store struct {
	path string

	mu       sync.RWMutex
	subjects []Subject
	index    map[string]Address
	version  string
}

// Open loads the curriculum document at path.
func Open(path string) (*Store, error) {
	subjects, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s := newStore(path, subjects)
	slog.Info("curriculum loaded", "path", path, "subjects", len(subjects), "subtopics", len(s.index), "version", s.version)
	return s, nil
}

// NewStore builds an in-memory store from an already decoded document.
// Updates are kept in memory only.
func NewStore(subjects []Subject) (*Store, error) {
	if err := checkDocument(subjects); err != nil {
		return nil, err
	}
	return newStore("", cloneSubjects(subjects)), nil
}

func newStore(path string, subjects []Subject) *Store {
	s := &Store{path: path}
	s.replace(subjects)
	return s
}

// replace swaps in a new document. Callers hold mu or own s exclusively.
func (s *Store) replace(subjects []Subject) {
	index := make(map[string]Address)
	for _, sub := range subjects {
		for _, t := range sub.Topics {
			for _, st := range t.Subtopics {
				index[st.ID] = Address{SubjectID: sub.ID, TopicID: t.ID, SubtopicID: st.ID}
			}
		}
	}
	s.subjects = subjects
	s.index = index
	s.version = versionOf(subjects)
}

// Snapshot returns a deep copy of the current document and its version.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Subjects: cloneSubjects(s.subjects), Version: s.version}
}

// Version returns the current content version.
func (s *Store) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Find resolves a composite id.
func (s *Store) Find(subjectID, topicID, subtopicID string) (Subtopic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr, ok := s.index[subtopicID]
	if !ok || addr.SubjectID != subjectID || addr.TopicID != topicID {
		return Subtopic{}, fmt.Errorf("%w: %s/%s/%s", ErrNotFound, subjectID, topicID, subtopicID)
	}
	return *subtopicAt(s.subjects, addr), nil
}

// Locate resolves a bare subtopic id to its address.
func (s *Store) Locate(subtopicID string) (Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.index[subtopicID]
	return addr, ok
}

// SubjectName returns the display name of a subject.
func (s *Store) SubjectName(subjectID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subjects {
		if sub.ID == subjectID {
			return sub.Subject, true
		}
	}
	return "", false
}

// subtopicAt returns a pointer into subjects for an address taken from the
// index of the same document.
func subtopicAt(subjects []Subject, addr Address) *Subtopic {
	for i := range subjects {
		if subjects[i].ID != addr.SubjectID {
			continue
		}
		for j := range subjects[i].Topics {
			t := &subjects[i].Topics[j]
			if t.ID != addr.TopicID {
				continue
			}
			for k := range t.Subtopics {
				if t.Subtopics[k].ID == addr.SubtopicID {
					return &t.Subtopics[k]
				}
			}
		}
	}
	return &Subtopic{}
}

// Update applies a write request: notes are replaced only when non-empty,
// progress always. A file-backed store rewrites its document before the new
// state becomes visible.
func (s *Store) Update(ctx context.Context, req UpdateRequest) (Subtopic, error) {
	if req.SubjectID == "" || req.TopicID == "" || req.SubtopicID == "" || !progress.Status(req.Progress).Valid() {
		return Subtopic{}, ErrInvalidUpdate
	}
	if err := ctx.Err(); err != nil {
		return Subtopic{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	addr, ok := s.index[req.SubtopicID]
	if !ok || addr.SubjectID != req.SubjectID || addr.TopicID != req.TopicID {
		return Subtopic{}, fmt.Errorf("%w: %s/%s/%s", ErrNotFound, req.SubjectID, req.TopicID, req.SubtopicID)
	}

	next := cloneSubjects(s.subjects)
	st := subtopicAt(next, addr)

	if req.Notes != "" {
		st.Notes = req.Notes
	}
	st.Progress = progress.Status(req.Progress)
	updated := *st

	if s.path != "" {
		if err := writeDocument(s.path, next); err != nil {
			return Subtopic{}, fmt.Errorf("writing curriculum: %w", err)
		}
	}
	s.replace(next)

	slog.Info("curriculum updated", "subtopic_id", req.SubtopicID, "progress", req.Progress, "version", s.version)
	return updated, nil
}

// versionOf hashes the canonical JSON encoding of a document.
func versionOf(subjects []Subject) string {
	data, err := json.Marshal(subjects)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

func writeDocument(path string, subjects []Subject) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(subjects)
	} else {
		data, err = json.MarshalIndent(subjects, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
