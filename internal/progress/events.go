package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types emitted by the ledger.
const (
	EventSaved      = "record_saved"
	EventSaveFailed = "record_save_failed"
)

const eventTimeout = 5 * time.Second

// Event is one ledger write outcome.
type Event struct {
	ID         string         `json:"id"`
	SubtopicID string         `json:"subtopicId"`
	EventType  string         `json:"type"`
	Data       map[string]any `json:"data,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// EventLogger defines event logging behavior.
type EventLogger interface {
	LogEvent(event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error {
	return nil
}

// SlogEventLogger writes events to the default logger at debug level.
type SlogEventLogger struct{}

func (SlogEventLogger) LogEvent(event Event) error {
	slog.Debug("progress event",
		"type", event.EventType,
		"subtopic_id", event.SubtopicID,
		"data", event.Data,
	)
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(event Event) error {
	event, err := stamp(event)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// PostgresEventLogger inserts events into the progress_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	event, err := stamp(event)
	if err != nil {
		return err
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	_, err = l.pool.Exec(ctx,
		`INSERT INTO progress_events (id, subtopic_id, event_type, data, created_at)
		 VALUES ($1::uuid, $2, $3, $4::jsonb, $5)`,
		event.ID,
		event.SubtopicID,
		event.EventType,
		string(data),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.EventType,
		"subtopic_id", event.SubtopicID,
	)
	return nil
}

// JSONPublisher is the slice of a message broker the AMQP logger needs.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

// AMQPEventLogger publishes events with the event type as routing key.
type AMQPEventLogger struct {
	pub JSONPublisher
}

func NewAMQPEventLogger(pub JSONPublisher) *AMQPEventLogger {
	return &AMQPEventLogger{pub: pub}
}

func (l *AMQPEventLogger) LogEvent(event Event) error {
	if l == nil || l.pub == nil {
		return fmt.Errorf("event publisher is nil")
	}
	event, err := stamp(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	return l.pub.PublishJSON(ctx, event.EventType, event)
}

// stamp validates an event and fills in its id and timestamp.
func stamp(event Event) (Event, error) {
	if event.EventType == "" {
		return event, fmt.Errorf("event_type is required")
	}
	if event.SubtopicID == "" {
		return event, fmt.Errorf("subtopic_id is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return event, nil
}
