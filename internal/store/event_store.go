package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Clock is the monotonic-per-server wall clock dependency. It returns the
// append timestamp as whole seconds, non-decreasing in insertion order.
// Callers in production pass Now; tests substitute a deterministic
// sequence.
type Clock func() uint32

// Now is the production Clock: wall-clock seconds, truncated to uint32.
func Now() uint32 {
	return uint32(time.Now().Unix())
}

// EventStore ties the Producer, Cursor Engine, and Subscription Runtime to
// one pgx connection pool. It is the façade an application imports;
// internal/store's other files are usable standalone given any Executor,
// but EventStore is what cmd/seqstore constructs.
type EventStore struct {
	pool  *pgxpool.Pool
	clock Clock
}

// NewEventStore opens (and pings) a connection pool against dsn.
func NewEventStore(ctx context.Context, dsn string) (*EventStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, backendErr("NewEventStore", fmt.Errorf("parse pool config: %w", err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, backendErr("NewEventStore", fmt.Errorf("connect: %w", err))
	}

	return &EventStore{pool: pool, clock: Now}, nil
}

// NewEventStoreWithPool adapts an already-constructed pool, e.g. one shared
// with other subsystems or built for integration tests against a
// testcontainers-managed Postgres.
func NewEventStoreWithPool(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool, clock: Now}
}

// WithClock overrides the clock dependency; used by tests that need
// deterministic, strictly increasing timestamps.
func (s *EventStore) WithClock(clock Clock) *EventStore {
	s.clock = clock
	return s
}

// Close releases the underlying pool.
func (s *EventStore) Close() {
	s.pool.Close()
}

// Pool exposes the underlying Executor for callers that need to compose
// their own transactions across store operations.
func (s *EventStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Producer starts a staged batch for aggregate, ready for Publish.
func (s *EventStore) Producer(aggregate string) *Producer {
	return NewProducer(aggregate)
}

// Publish appends producer's staged batch through the store's pool, stamped
// with the store's clock.
func (s *EventStore) Publish(ctx context.Context, producer *Producer) ([]Event, error) {
	return producer.Publish(ctx, s.pool, s.clock)
}

// Page runs a one-shot cursor-paginated scan over the event log, optionally
// filtered by topic and tenant; tenant is ignored when topic is empty (see
// selectEventsSQL). Pass backward=true to page toward the
// start of the log from cursor instead of away from it.
func (s *EventStore) Page(ctx context.Context, topic, tenant string, limit int, cursor string, backward bool) (*Page[Event], error) {
	sql, binds := selectEventsSQL(topic, tenant)
	engine := NewCursorEngine[Event](eventPageable{}, scanEventRow, sql)
	for _, b := range binds {
		engine.Bind(b)
	}
	if backward {
		return engine.Backward(limit, cursor).Query(ctx, s.pool)
	}
	return engine.Forward(limit, cursor).Query(ctx, s.pool)
}

// Stream attaches a subscription.
func (s *EventStore) Stream(ctx context.Context, id, url string) (*Subscription, error) {
	return Stream(ctx, s.pool, id, url)
}

// Ack acknowledges cursor for a persistent consumer.
func (s *EventStore) Ack(ctx context.Context, id string, cursor Cursor) error {
	return Ack(ctx, s.pool, id, cursor)
}

// Unack is the reserved dead-letter hook; see Unack's own doc comment.
func (s *EventStore) Unack(ctx context.Context, id, eventID, reason string) error {
	return Unack(ctx, s.pool, id, eventID, reason)
}
