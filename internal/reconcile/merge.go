package reconcile

import (
	"regexp"
	"strings"

	"github.com/p-n-ai/study-tracker/internal/curriculum"
	"github.com/p-n-ai/study-tracker/internal/progress"
)

// Merge resolves each field independently: the ledger value when the record
// exists and the field is set, else the curriculum baseline, else the type
// default. A ledger record written through one field's edit path must not
// blank the others.
func Merge(ledger progress.Record, exists bool, baseline curriculum.Subtopic) progress.Record {
	base := baseline.Baseline()
	out := progress.Default()

	switch {
	case exists && ledger.Notes != "":
		out.Notes = ledger.Notes
	case base.Notes != "":
		out.Notes = base.Notes
	}

	switch {
	case exists && ledger.Progress.Valid():
		out.Progress = ledger.Progress
	case base.Progress != "":
		out.Progress = base.Progress
	}

	switch {
	case exists && ledger.TargetTime > 0:
		out.TargetTime = ledger.TargetTime
	case base.TargetTime > 0:
		out.TargetTime = base.TargetTime
	}

	switch {
	case exists && ledger.RemainingTime > 0:
		out.RemainingTime = ledger.RemainingTime
	case base.RemainingTime > 0:
		out.RemainingTime = base.RemainingTime
	}

	return out
}

// repair replaces the fields of a stored record that break the ledger rules
// with the fallback's values. It reports what was wrong, or nil when the
// record was usable as is.
func repair(stored, fallback progress.Record) (progress.Record, error) {
	err := stored.Validate()
	if err == nil {
		return stored, nil
	}
	if !stored.Progress.Valid() {
		stored.Progress = fallback.Progress
	}
	if stored.TargetTime < 0 || stored.TargetTime > progress.MaxTargetTime {
		stored.TargetTime = fallback.TargetTime
		stored.RemainingTime = fallback.RemainingTime
	}
	if stored.RemainingTime < 0 {
		stored.RemainingTime = fallback.RemainingTime
	}
	return stored, err
}

var markup = regexp.MustCompile(`<[^>]*>`)

// WordCount counts whitespace separated words in notes, ignoring markup.
func WordCount(notes string) int {
	return len(strings.Fields(markup.ReplaceAllString(notes, " ")))
}

// percent returns completed/total as a percentage, 0 for an empty set.
func percent(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}
