// Package progress implements the progress ledger: one mutable record of notes,
// status and study timing per subtopic id, behind substitutable storage back ends.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Status is the closed set of progress values.
type Status string

const (
	StatusNotStarted Status = "Not Started"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// SecondsPerMinute converts a target time (minutes) into remaining time (seconds).
const SecondsPerMinute = 60

// MaxTargetTime is the largest target whose remaining time fits in an int.
const MaxTargetTime = math.MaxInt / SecondsPerMinute

// KeyPrefix namespaces ledger keys. Subtopic ids are globally unique, so no
// subject or topic qualifier is added.
const KeyPrefix = "subtopic_"

var (
	// ErrInvalidRecord is returned when a record violates the ledger invariants.
	ErrInvalidRecord = errors.New("invalid progress record")
	// ErrInvalidStatus is returned for progress values outside the closed set.
	ErrInvalidStatus = errors.New("unrecognized progress value")
	// ErrEmptyKey is returned when a subtopic id is empty.
	ErrEmptyKey = errors.New("subtopic id is empty")
)

// ParseStatus accepts the canonical values plus the spellings earlier
// deployments wrote ("NotStarted", "in_progress", ...). The two-value
// deployment's "Pending" is migrated to StatusNotStarted.
func ParseStatus(s string) (Status, error) {
	norm := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(s)))
	switch norm {
	case "notstarted", "pending":
		return StatusNotStarted, nil
	case "inprogress":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Valid reports whether s is one of the canonical values.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// UnmarshalJSON normalizes known spellings. Unknown values are kept verbatim
// so Validate can reject them with a useful message.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if parsed, err := ParseStatus(raw); err == nil {
		*s = parsed
		return nil
	}
	*s = Status(raw)
	return nil
}

// Record is the ledger-owned state of one subtopic.
type Record struct {
	Notes         string `json:"notes"`
	Progress      Status `json:"progress"`
	TargetTime    int    `json:"targetTime"`    // minutes
	RemainingTime int    `json:"remainingTime"` // seconds
}

// Default is what Load returns for a subtopic that was never written.
func Default() Record {
	return Record{Progress: StatusNotStarted}
}

// Validate checks the closed status set and the timing field bounds.
func (r Record) Validate() error {
	if !r.Progress.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRecord, ErrInvalidStatus, string(r.Progress))
	}
	if r.TargetTime < 0 {
		return fmt.Errorf("%w: targetTime %d is negative", ErrInvalidRecord, r.TargetTime)
	}
	if r.TargetTime > MaxTargetTime {
		return fmt.Errorf("%w: targetTime %d exceeds %d", ErrInvalidRecord, r.TargetTime, MaxTargetTime)
	}
	if r.RemainingTime < 0 {
		return fmt.Errorf("%w: remainingTime %d is negative", ErrInvalidRecord, r.RemainingTime)
	}
	return nil
}

// WithTargetTime sets the target and restarts the countdown from it.
func (r Record) WithTargetTime(minutes int) Record {
	r.TargetTime = minutes
	r.RemainingTime = minutes * SecondsPerMinute
	return r
}

// Key derives the ledger key for a subtopic id.
func Key(subtopicID string) (string, error) {
	if strings.TrimSpace(subtopicID) == "" {
		return "", ErrEmptyKey
	}
	return KeyPrefix + subtopicID, nil
}

// SubtopicID strips the key prefix.
func SubtopicID(key string) string {
	return strings.TrimPrefix(key, KeyPrefix)
}
