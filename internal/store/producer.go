package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"go-seqstore/internal/codec"
)

// postgresUniqueViolation is the SQLSTATE Postgres raises for a unique
// constraint conflict — here, the (aggregate, version) unique index.
const postgresUniqueViolation = "23505"

// stagedEvent is one Event() / EventWithMetadata() call awaiting publish.
type stagedEvent struct {
	id       string
	name     string
	data     []byte
	metadata []byte
}

// Producer stages a batch of events for one aggregate and appends them
// transactionally. A Producer is single-use: build it, stage events,
// Publish once.
type Producer struct {
	aggregate       string
	topic           string
	tenant          string
	originalVersion uint16
	staged          []stagedEvent
	err             error
}

// NewProducer starts staging a batch for aggregate. The batch's first event
// will be written at version originalVersion+1 (default 0, i.e. version 1).
func NewProducer(aggregate string) *Producer {
	return &Producer{aggregate: aggregate}
}

// Topic sets the routing key applied to every staged event in the batch,
// rather than per-event.
func (p *Producer) Topic(topic string) *Producer {
	p.topic = topic
	return p
}

// Tenant sets the isolation key applied to every staged event.
func (p *Producer) Tenant(tenant string) *Producer {
	p.tenant = tenant
	return p
}

// OriginalVersion sets the version the caller believes the aggregate is
// currently at; the batch is rejected unless that is still true at publish
// time.
func (p *Producer) OriginalVersion(v uint16) *Producer {
	p.originalVersion = v
	return p
}

// Event stages one event with no metadata. typeName is the fully-qualified
// logical type identifier the reader will later request via DecodeData
// It is caller-provided rather than derived by reflection, so the reader
// and writer never need to agree on a shared Go type.
func (p *Producer) Event(typeName string, data any) *Producer {
	return p.EventWithMetadata(typeName, data, nil)
}

// EventWithMetadata stages one event carrying a side-channel metadata value.
// A nil metadata is equivalent to calling Event.
func (p *Producer) EventWithMetadata(typeName string, data any, metadata any) *Producer {
	if p.err != nil {
		return p
	}

	id, err := newEventID()
	if err != nil {
		p.err = backendErr("Producer.Event", err)
		return p
	}

	encodedData, err := codec.Encode(data)
	if err != nil {
		p.err = codecErr("Producer.Event", err)
		return p
	}

	var encodedMetadata []byte
	if metadata != nil {
		encodedMetadata, err = codec.Encode(metadata)
		if err != nil {
			p.err = codecErr("Producer.Event", err)
			return p
		}
	}

	p.staged = append(p.staged, stagedEvent{
		id:       id,
		name:     typeName,
		data:     encodedData,
		metadata: encodedMetadata,
	})
	return p
}

// Publish appends every staged event in one transaction. On success it
// returns the persisted events in staging order. On an
// optimistic-concurrency loss it returns a *ConcurrencyError and leaves no
// trace of the batch.
func (p *Producer) Publish(ctx context.Context, executor Executor, clock func() uint32) ([]Event, error) {
	if p.err != nil {
		return nil, p.err
	}
	if len(p.staged) == 0 {
		return nil, validationErr("Producer.Publish", "staged", "empty", errors.New("no events staged"))
	}

	tx, err := executor.Begin(ctx)
	if err != nil {
		return nil, backendErr("Producer.Publish", err)
	}
	defer tx.Rollback(ctx)

	now := clock()
	events := make([]Event, len(p.staged))
	version := p.originalVersion
	for i, s := range p.staged {
		version++
		events[i] = Event{
			ID:        s.id,
			Name:      s.name,
			Aggregate: p.aggregate,
			Version:   version,
			Data:      s.data,
			Metadata:  s.metadata,
			Topic:     p.topic,
			Tenant:    p.tenant,
			Timestamp: now,
		}
	}

	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)",
		eventsTable, joinColumns(eventColumns),
	)
	for _, e := range events {
		var tenant any
		if e.Tenant != "" {
			tenant = e.Tenant
		}
		_, err := tx.Exec(ctx, insertSQL,
			e.ID, e.Name, e.Aggregate, e.Version, e.Data, e.Metadata, e.Topic, tenant, e.Timestamp,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation {
				return nil, &ConcurrencyError{
					StoreError:       StoreError{Op: "Producer.Publish", Err: err},
					Aggregate:        p.aggregate,
					ExpectedVersion:  p.originalVersion,
					ConflictPosition: e.Version,
				}
			}
			return nil, backendErr("Producer.Publish", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, backendErr("Producer.Publish", err)
	}
	return events, nil
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ","
		}
		out += c
	}
	return out
}
