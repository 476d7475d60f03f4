package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/study-tracker/internal/curriculum"
)

// DefaultNoteDebounce is the idle time after the last keystroke before a
// note is committed.
const DefaultNoteDebounce = 500 * time.Millisecond

// ErrDebouncerClosed is returned by Type after Close.
var ErrDebouncerClosed = errors.New("debouncer closed")

// CommitFunc persists the final content of a note.
type CommitFunc func(ctx context.Context, addr curriculum.Address, notes string) error

// draft is the latest uncommitted content of one subtopic's notes.
type draft struct {
	addr    curriculum.Address
	content string
	timer   *time.Timer
	gen     uint64
}

// Debouncer coalesces note input per subtopic. Each Type restarts that
// subtopic's timer; when it fires only the latest content is committed.
// Commits for one subtopic never overlap and always carry newer content
// than the previous one.
type Debouncer struct {
	delay   time.Duration
	commit  CommitFunc
	onError func(curriculum.Address, error)

	mu      sync.Mutex
	drafts  map[string]*draft
	locks   map[string]*idLock
	gen     uint64
	closed  bool
	running sync.WaitGroup
}

// NewDebouncer creates a debouncer. onError may be nil.
func NewDebouncer(delay time.Duration, commit CommitFunc, onError func(curriculum.Address, error)) *Debouncer {
	if delay <= 0 {
		delay = DefaultNoteDebounce
	}
	return &Debouncer{
		delay:   delay,
		commit:  commit,
		onError: onError,
		drafts:  make(map[string]*draft),
		locks:   make(map[string]*idLock),
	}
}

// NotesCommitter adapts a Reconciler to a CommitFunc.
func NotesCommitter(r *Reconciler) CommitFunc {
	return func(ctx context.Context, addr curriculum.Address, notes string) error {
		_, err := r.UpdateNotes(ctx, addr.SubjectID, addr.TopicID, addr.SubtopicID, notes)
		return err
	}
}

// Type records new note content and restarts the idle timer.
func (d *Debouncer) Type(addr curriculum.Address, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDebouncerClosed
	}

	d.gen++
	gen := d.gen
	id := addr.SubtopicID

	if dr, ok := d.drafts[id]; ok {
		dr.timer.Stop()
		dr.addr = addr
		dr.content = content
		dr.gen = gen
		dr.timer = time.AfterFunc(d.delay, func() { d.fire(id, gen) })
		return nil
	}

	d.running.Add(1)
	d.drafts[id] = &draft{
		addr:    addr,
		content: content,
		gen:     gen,
		timer:   time.AfterFunc(d.delay, func() { d.fire(id, gen) }),
	}
	return nil
}

// Pending reports whether a subtopic has uncommitted note content.
func (d *Debouncer) Pending(subtopicID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.drafts[subtopicID]
	return ok
}

func (d *Debouncer) fire(id string, gen uint64) {
	d.lock(id)
	defer d.unlock(id)

	d.mu.Lock()
	dr, ok := d.drafts[id]
	if !ok || dr.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.drafts, id)
	d.mu.Unlock()

	d.run(context.Background(), dr)
}

// Flush commits a subtopic's pending note now, e.g. when the user navigates
// away. It is a no-op when nothing is pending.
func (d *Debouncer) Flush(ctx context.Context, subtopicID string) error {
	d.lock(subtopicID)
	defer d.unlock(subtopicID)

	d.mu.Lock()
	dr, ok := d.drafts[subtopicID]
	if !ok {
		d.mu.Unlock()
		return nil
	}
	dr.timer.Stop()
	delete(d.drafts, subtopicID)
	d.mu.Unlock()

	return d.run(ctx, dr)
}

// Close stops accepting input and commits every pending note.
func (d *Debouncer) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	ids := make([]string, 0, len(d.drafts))
	for id := range d.drafts {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := d.Flush(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	d.running.Wait()
	return errors.Join(errs...)
}

// run commits one draft and marks it done. Callers hold the subtopic lock.
func (d *Debouncer) run(ctx context.Context, dr *draft) error {
	defer d.running.Done()

	err := d.commit(ctx, dr.addr, dr.content)
	if err != nil {
		slog.Warn("note commit failed", "subtopic_id", dr.addr.SubtopicID, "error", err)
		if d.onError != nil {
			d.onError(dr.addr, err)
		}
	}
	return err
}

// idLock serializes commits of one subtopic. refs counts holders and
// waiters; the entry is dropped when it reaches zero.
type idLock struct {
	mu   sync.Mutex
	refs int
}

func (d *Debouncer) lock(id string) {
	d.mu.Lock()
	l, ok := d.locks[id]
	if !ok {
		l = &idLock{}
		d.locks[id] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
}

func (d *Debouncer) unlock(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.locks[id]
	l.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(d.locks, id)
	}
}
