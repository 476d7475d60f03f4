package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrStoreUnavailable wraps every back-end failure, including timeouts.
var ErrStoreUnavailable = errors.New("progress store unavailable")

const defaultTimeout = 5 * time.Second

// UpdateFunc receives the current record (Default() when absent) and returns
// its replacement.
type UpdateFunc func(current Record, exists bool) (Record, error)

// Ledger is the progress ledger: a Store plus key derivation, validation,
// bounded back-end calls and per-key FIFO serialization of writes.
type Ledger struct {
	store   Store
	timeout time.Duration
	queue   *keyQueue
	events  EventLogger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTimeout bounds every back-end call.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithEventLogger reports saves and failed saves to el.
func WithEventLogger(el EventLogger) Option {
	return func(l *Ledger) {
		if el != nil {
			l.events = el
		}
	}
}

// NewLedger wraps store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		timeout: defaultTimeout,
		queue:   newKeyQueue(),
		events:  NopEventLogger{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the stored record for subtopicID, or Default() when none exists.
// Absence is not an error.
func (l *Ledger) Load(ctx context.Context, subtopicID string) (Record, error) {
	rec, _, err := l.Lookup(ctx, subtopicID)
	return rec, err
}

// Lookup is Load that also reports whether a record exists.
func (l *Ledger) Lookup(ctx context.Context, subtopicID string) (Record, bool, error) {
	key, err := Key(subtopicID)
	if err != nil {
		return Record{}, false, err
	}
	rec, ok, err := l.get(ctx, key)
	if err != nil {
		return Default(), false, err
	}
	if !ok {
		return Default(), false, nil
	}
	return rec, true, nil
}

// Save replaces the record for subtopicID. An invalid record is rejected
// before anything is read or written.
func (l *Ledger) Save(ctx context.Context, subtopicID string, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := l.Update(ctx, subtopicID, func(Record, bool) (Record, error) {
		return rec, nil
	})
	return err
}

// Update runs a read-modify-write cycle for one subtopic. Cycles on the same
// subtopic run one at a time in call order. When the target time changes, the
// remaining time is restarted from it in the same write.
func (l *Ledger) Update(ctx context.Context, subtopicID string, fn UpdateFunc) (Record, error) {
	key, err := Key(subtopicID)
	if err != nil {
		return Record{}, err
	}

	release, err := l.queue.acquire(ctx, key)
	if err != nil {
		return Record{}, fmt.Errorf("%w: waiting for %s: %w", ErrStoreUnavailable, key, err)
	}
	defer release()

	current, exists, err := l.get(ctx, key)
	if err != nil {
		return Record{}, err
	}
	if !exists {
		current = Default()
	}

	next, err := fn(current, exists)
	if err != nil {
		return Record{}, err
	}
	if next.TargetTime != current.TargetTime && next.TargetTime >= 0 && next.TargetTime <= MaxTargetTime {
		next = next.WithTargetTime(next.TargetTime)
	}
	if err := next.Validate(); err != nil {
		return Record{}, err
	}

	if err := l.put(ctx, key, next); err != nil {
		l.logEvent(key, EventSaveFailed, map[string]any{"error": err.Error()})
		return Record{}, err
	}

	l.logEvent(key, EventSaved, map[string]any{
		"progress":       string(next.Progress),
		"target_time":    next.TargetTime,
		"remaining_time": next.RemainingTime,
		"notes_len":      len(next.Notes),
	})
	return next, nil
}

// Ping checks the back end within the ledger timeout.
func (l *Ledger) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the back end.
func (l *Ledger) Close() error {
	return l.store.Close()
}

func (l *Ledger) get(ctx context.Context, key string) (Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	rec, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: get %s: %w", ErrStoreUnavailable, key, err)
	}
	return rec, ok, nil
}

func (l *Ledger) put(ctx context.Context, key string, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.store.Put(ctx, key, rec); err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrStoreUnavailable, key, err)
	}
	return nil
}

func (l *Ledger) logEvent(key, eventType string, data map[string]any) {
	if err := l.events.LogEvent(Event{
		SubtopicID: SubtopicID(key),
		EventType:  eventType,
		Data:       data,
	}); err != nil {
		slog.Warn("failed to log progress event", "type", eventType, "key", key, "error", err)
	}
}
