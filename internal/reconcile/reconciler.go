// Package reconcile builds the merged view of curriculum and ledger state and
// sequences single-field edits against the ledger.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/study-tracker/internal/curriculum"
	"github.com/p-n-ai/study-tracker/internal/progress"
)

var (
	// ErrValidation is returned for malformed edits: missing ids, an
	// unrecognized progress value or a negative target time.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when an edit targets an unknown subtopic.
	ErrNotFound = curriculum.ErrNotFound
)

const defaultConcurrency = 16

// Curriculum is the read side of the curriculum store.
type Curriculum interface {
	Snapshot() curriculum.Snapshot
	Find(subjectID, topicID, subtopicID string) (curriculum.Subtopic, error)
}

// Ledger is the part of the progress ledger the reconciler drives.
type Ledger interface {
	Lookup(ctx context.Context, subtopicID string) (progress.Record, bool, error)
	Update(ctx context.Context, subtopicID string, fn progress.UpdateFunc) (progress.Record, error)
}

// Refresh is sent to subscribers whenever the cached view changes.
// SubtopicID is empty for a full rebuild that was not caused by an edit.
type Refresh struct {
	Version    string `json:"version"`
	SubtopicID string `json:"subtopicId,omitempty"`
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithConcurrency bounds the number of ledger lookups in flight during a rebuild.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithSession shares an existing session.
func WithSession(s *Session) Option {
	return func(r *Reconciler) {
		if s != nil {
			r.session = s
		}
	}
}

// editState tracks the latest unconfirmed values of one subtopic.
type editState struct {
	optimistic progress.Record
	sync       map[Field]SyncState
	seq        map[Field]uint64
}

// Reconciler owns the cached view.
type Reconciler struct {
	curriculum  Curriculum
	ledger      Ledger
	session     *Session
	concurrency int

	refreshMu sync.Mutex // one rebuild at a time so views never go backwards

	mu    sync.RWMutex
	view  View
	last  map[string]progress.Record // merged ledger state from the last successful lookup
	edits map[string]*editState
	seq   uint64

	subMu   sync.RWMutex
	subs    map[int]func(Refresh)
	nextSub int
}

// New creates a reconciler. The view is empty until BuildView runs.
func New(c Curriculum, l Ledger, opts ...Option) *Reconciler {
	r := &Reconciler{
		curriculum:  c,
		ledger:      l,
		session:     NewSession(),
		concurrency: defaultConcurrency,
		last:        make(map[string]progress.Record),
		edits:       make(map[string]*editState),
		subs:        make(map[int]func(Refresh)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Session returns the session used for the priority split.
func (r *Reconciler) Session() *Session {
	return r.session
}

// View returns a copy of the cached view with the current priority split.
func (r *Reconciler) View() View {
	r.mu.RLock()
	v := cloneView(r.view)
	r.mu.RUnlock()

	v.Priority, v.ToCover = split(v.Subjects, r.session.Snapshot().PrioritySubjects)
	return v
}

// SyncState returns the per-field persistence state of a subtopic.
func (r *Reconciler) SyncState(subtopicID string) map[Field]SyncState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if es := r.edits[subtopicID]; es != nil {
		return maps.Clone(es.sync)
	}
	return map[Field]SyncState{}
}

// BuildView loads every subtopic's ledger record, merges it with the
// curriculum baseline and caches the result. A failed lookup does not fail
// the build: the subtopic keeps its last known value and the view is marked
// degraded. Stored fields outside the ledger rules are replaced by the
// baseline and reported the same way.
func (r *Reconciler) BuildView(ctx context.Context) (View, error) {
	return r.refresh(ctx, "")
}

type lookupSlot struct {
	sub    curriculum.Subtopic
	rec    progress.Record
	exists bool
	err    error
}

func (r *Reconciler) refresh(ctx context.Context, cause string) (View, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	snap := r.curriculum.Snapshot()

	var slots []*lookupSlot
	for _, s := range snap.Subjects {
		for _, t := range s.Topics {
			for _, st := range t.Subtopics {
				slots = append(slots, &lookupSlot{sub: st})
			}
		}
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, slot := range slots {
		g.Go(func() error {
			slot.rec, slot.exists, slot.err = r.ledger.Lookup(ctx, slot.sub.ID)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return View{}, fmt.Errorf("building view: %w", err)
	}

	r.mu.Lock()
	view := View{
		Version:  snap.Version,
		BuiltAt:  time.Now(),
		Subjects: make([]SubjectView, 0, len(snap.Subjects)),
	}
	failed := 0
	i := 0
	for _, s := range snap.Subjects {
		sv := SubjectView{ID: s.ID, Subject: s.Subject, Code: s.Code, Marks: s.Marks, Topics: make([]TopicView, 0, len(s.Topics))}
		for _, t := range s.Topics {
			tv := TopicView{ID: t.ID, Title: t.Title, Subtopics: make([]SubtopicView, 0, len(t.Subtopics))}
			for range t.Subtopics {
				slot := slots[i]
				i++
				st := r.mergeSlot(slot)
				tv.Subtopics = append(tv.Subtopics, st)
				if st.LoadError != "" {
					failed++
				}
			}
			sv.Topics = append(sv.Topics, tv)
		}
		view.Subjects = append(view.Subjects, sv)
	}
	view.Degraded = failed > 0
	view.recount()
	r.view = view
	r.mu.Unlock()

	if failed > 0 {
		slog.Warn("view built with ledger failures", "failed", failed, "subtopics", len(slots))
	} else {
		slog.Debug("view built", "subtopics", len(slots), "version", snap.Version)
	}

	r.notify(Refresh{Version: snap.Version, SubtopicID: cause})
	return r.View(), nil
}

// mergeSlot turns one lookup result into a subtopic view. Callers hold mu.
func (r *Reconciler) mergeSlot(slot *lookupSlot) SubtopicView {
	id := slot.sub.ID

	var merged progress.Record
	var loadErr string
	if slot.err != nil {
		slog.Warn("ledger lookup failed", "subtopic_id", id, "error", slot.err)
		loadErr = slot.err.Error()
		if prev, ok := r.last[id]; ok {
			merged = prev
		} else {
			merged = Merge(progress.Record{}, false, slot.sub)
		}
	} else {
		rec := slot.rec
		if slot.exists {
			var err error
			if rec, err = repair(rec, Merge(progress.Record{}, false, slot.sub)); err != nil {
				slog.Warn("ignoring invalid stored fields", "subtopic_id", id, "error", err)
				loadErr = err.Error()
			}
		}
		merged = Merge(rec, slot.exists, slot.sub)
		r.last[id] = merged
	}

	var syncState map[Field]SyncState
	if es := r.edits[id]; es != nil {
		merged = overlay(merged, es)
		syncState = maps.Clone(es.sync)
	}

	return SubtopicView{
		ID:            id,
		Title:         slot.sub.Title,
		Notes:         merged.Notes,
		Progress:      merged.Progress,
		TargetTime:    merged.TargetTime,
		RemainingTime: merged.RemainingTime,
		WordCount:     WordCount(merged.Notes),
		Sync:          syncState,
		LoadError:     loadErr,
	}
}

// overlay keeps unconfirmed field values visible over ledger state.
func overlay(rec progress.Record, es *editState) progress.Record {
	for field, st := range es.sync {
		if st.State == StateConfirmed {
			continue
		}
		switch field {
		case FieldNotes:
			rec.Notes = es.optimistic.Notes
		case FieldProgress:
			rec.Progress = es.optimistic.Progress
		case FieldTargetTime:
			rec.TargetTime = es.optimistic.TargetTime
			rec.RemainingTime = es.optimistic.RemainingTime
		}
	}
	return rec
}

// UpdateNotes replaces the notes of one subtopic.
func (r *Reconciler) UpdateNotes(ctx context.Context, subjectID, topicID, subtopicID, notes string) (SubtopicView, error) {
	return r.edit(ctx, subjectID, topicID, subtopicID, FieldNotes, func(rec *progress.Record) {
		rec.Notes = notes
	})
}

// UpdateProgress sets the progress of one subtopic. Legacy spellings such as
// "Pending" are accepted and stored canonically.
func (r *Reconciler) UpdateProgress(ctx context.Context, subjectID, topicID, subtopicID, value string) (SubtopicView, error) {
	status, err := progress.ParseStatus(value)
	if err != nil {
		return SubtopicView{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return r.edit(ctx, subjectID, topicID, subtopicID, FieldProgress, func(rec *progress.Record) {
		rec.Progress = status
	})
}

// UpdateTargetTime sets the target in minutes and restarts the countdown.
func (r *Reconciler) UpdateTargetTime(ctx context.Context, subjectID, topicID, subtopicID string, minutes int) (SubtopicView, error) {
	if minutes < 0 {
		return SubtopicView{}, fmt.Errorf("%w: target time %d is negative", ErrValidation, minutes)
	}
	if minutes > progress.MaxTargetTime {
		return SubtopicView{}, fmt.Errorf("%w: target time %d exceeds %d minutes", ErrValidation, minutes, progress.MaxTargetTime)
	}
	return r.edit(ctx, subjectID, topicID, subtopicID, FieldTargetTime, func(rec *progress.Record) {
		*rec = rec.WithTargetTime(minutes)
	})
}

// edit runs one single-field read-modify-write against the ledger and then
// rebuilds the view. On failure the optimistic value stays visible and the
// field is marked failed.
func (r *Reconciler) edit(ctx context.Context, subjectID, topicID, subtopicID string, field Field, apply func(*progress.Record)) (SubtopicView, error) {
	if subjectID == "" || topicID == "" || subtopicID == "" {
		return SubtopicView{}, fmt.Errorf("%w: subjectId, topicId and subtopicId are required", ErrValidation)
	}
	baseline, err := r.curriculum.Find(subjectID, topicID, subtopicID)
	if err != nil {
		return SubtopicView{}, err
	}

	seq := r.markPending(baseline, field, apply)

	_, err = r.ledger.Update(ctx, subtopicID, func(cur progress.Record, exists bool) (progress.Record, error) {
		if !exists {
			cur = r.seed(baseline)
		} else if fixed, bad := repair(cur, r.seed(baseline)); bad != nil {
			slog.Warn("replacing invalid stored fields", "subtopic_id", subtopicID, "error", bad)
			cur = fixed
		}
		apply(&cur)
		return cur, nil
	})
	if err != nil {
		r.settle(subtopicID, field, seq, err)
		slog.Warn("edit not persisted", "subtopic_id", subtopicID, "field", string(field), "error", err)

		v := r.View()
		r.notify(Refresh{Version: v.Version, SubtopicID: subtopicID})
		sv, _ := v.Subtopic(subjectID, topicID, subtopicID)
		return sv, fmt.Errorf("update %s of %s: %w", field, subtopicID, err)
	}

	r.settle(subtopicID, field, seq, nil)

	v, err := r.refresh(ctx, subtopicID)
	if err != nil {
		return SubtopicView{}, err
	}
	sv, _ := v.Subtopic(subjectID, topicID, subtopicID)
	return sv, nil
}

// seed is the record an edit starts from when the ledger has none: the
// merged baseline, so the untouched fields keep their visible values.
func (r *Reconciler) seed(baseline curriculum.Subtopic) progress.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.last[baseline.ID]; ok {
		return rec
	}
	return Merge(progress.Record{}, false, baseline)
}

// markPending records the optimistic value of field and patches the cached view.
func (r *Reconciler) markPending(baseline curriculum.Subtopic, field Field, apply func(*progress.Record)) uint64 {
	id := baseline.ID

	r.mu.Lock()
	defer r.mu.Unlock()

	current := Merge(progress.Record{}, false, baseline)
	if sv, ok := r.findCached(id); ok {
		current = sv.Record()
	}
	apply(&current)

	es := r.edits[id]
	if es == nil {
		es = &editState{sync: make(map[Field]SyncState), seq: make(map[Field]uint64)}
		r.edits[id] = es
	}
	r.seq++
	es.seq[field] = r.seq
	es.optimistic = current
	es.sync[field] = SyncState{State: StatePending}

	r.view.patch(id, func(sv *SubtopicView) {
		sv.Notes = current.Notes
		sv.Progress = current.Progress
		sv.TargetTime = current.TargetTime
		sv.RemainingTime = current.RemainingTime
		sv.WordCount = WordCount(current.Notes)
		sv.Sync = maps.Clone(es.sync)
	})
	return r.seq
}

// settle marks field confirmed or failed unless a newer edit of the same
// field has started since.
func (r *Reconciler) settle(subtopicID string, field Field, seq uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	es := r.edits[subtopicID]
	if es == nil || es.seq[field] != seq {
		return
	}
	if err != nil {
		es.sync[field] = SyncState{State: StateFailed, Error: err.Error()}
	} else {
		es.sync[field] = SyncState{State: StateConfirmed}
	}
	r.view.patch(subtopicID, func(sv *SubtopicView) {
		sv.Sync = maps.Clone(es.sync)
	})
}

// findCached returns the cached view of a subtopic. Callers hold mu.
func (r *Reconciler) findCached(subtopicID string) (SubtopicView, bool) {
	for _, s := range r.view.Subjects {
		for _, t := range s.Topics {
			for _, st := range t.Subtopics {
				if st.ID == subtopicID {
					return st, true
				}
			}
		}
	}
	return SubtopicView{}, false
}

// OnRefresh registers fn to be called after every view change. The returned
// function unregisters it.
func (r *Reconciler) OnRefresh(fn func(Refresh)) func() {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subMu.Unlock()

	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Reconciler) notify(ev Refresh) {
	r.subMu.RLock()
	fns := make([]func(Refresh), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
