package store

import (
	"strings"

	"github.com/jackc/pgx/v5"

	"go-seqstore/internal/codec"
)

// Event is the canonical on-the-wire shape of a persisted event. Once
// persisted, no field is ever mutated.
type Event struct {
	ID        string // 26-char, lexicographically time-sortable
	Name      string // fully-qualified logical type name of the payload
	Aggregate string
	Version   uint16
	Data      []byte
	Metadata  []byte // nil means "no metadata was staged"
	Topic     string
	Tenant    string // empty means "no tenant"
	Timestamp uint32 // monotonic-per-server wall clock seconds
}

// DecodeData decodes event.Data into a value of type T, but only if
// event.Name matches typeName — the identifier the producer stored
// verbatim at encode time. It returns (zero, false, nil) on a type
// mismatch, and a non-nil error only when the bytes are malformed for the
// requested type.
func DecodeData[T any](event Event, typeName string) (T, bool, error) {
	var out T
	if event.Name != typeName {
		return out, false, nil
	}
	if err := codec.Decode(event.Data, &out); err != nil {
		return out, false, codecErr("DecodeData", err)
	}
	return out, true, nil
}

// DecodeMetadata decodes event.Metadata into a value of type M. It returns
// (zero, false, nil) when no metadata was staged for the event.
func DecodeMetadata[M any](event Event) (M, bool, error) {
	var out M
	if len(event.Metadata) == 0 {
		return out, false, nil
	}
	if err := codec.Decode(event.Metadata, &out); err != nil {
		return out, false, codecErr("DecodeMetadata", err)
	}
	return out, true, nil
}

// rowEvent mirrors the column order of eventColumns for Scan calls.
type rowEvent struct {
	ID        string
	Name      string
	Aggregate string
	Version   int32
	Data      []byte
	Metadata  []byte
	Topic     string
	Tenant    *string
	Timestamp int64
}

func (r rowEvent) toEvent() Event {
	e := Event{
		ID:        r.ID,
		Name:      r.Name,
		Aggregate: r.Aggregate,
		Version:   uint16(r.Version),
		Data:      r.Data,
		Metadata:  r.Metadata,
		Topic:     r.Topic,
		Timestamp: uint32(r.Timestamp),
	}
	if r.Tenant != nil {
		e.Tenant = *r.Tenant
	}
	return e
}

// eventOrderingKeys is Event's composite ordering key: timestamp first,
// then version, then id, to break ties deterministically.
var eventOrderingKeys = []string{"timestamp", "version", "id"}

// eventPageable is the Pageable[Event] witness used to build a CursorEngine
// over the events table: a static capability set resolved at compile time
// rather than a trait-object-style interface value.
type eventPageable struct{}

func (eventPageable) OrderingKeys() []string { return eventOrderingKeys }

func (eventPageable) ToCursor(row Event) Cursor {
	return Cursor{Timestamp: row.Timestamp, Version: row.Version, ID: row.ID}
}

// scanEventRow is the ScanRow[Event] passed to CursorEngine, matched to
// eventColumns' order.
func scanEventRow(rows pgx.Rows) (Event, error) {
	var r rowEvent
	if err := rows.Scan(
		&r.ID, &r.Name, &r.Aggregate, &r.Version,
		&r.Data, &r.Metadata, &r.Topic, &r.Tenant, &r.Timestamp,
	); err != nil {
		return Event{}, err
	}
	return r.toEvent(), nil
}

// selectEventsSQL builds the base SELECT used by both one-shot pagination
// and the subscription poll loop, optionally filtered by topic and tenant.
// The tenant filter is only added when topic is non-empty.
// Returns the SQL and its positional bind values, in bind order.
func selectEventsSQL(topic, tenant string) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(eventColumns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(eventsTable)

	args := []any{}
	if topic != "" {
		args = append(args, topic)
		b.WriteString(" WHERE topic = $1")
		if tenant != "" {
			args = append(args, tenant)
			b.WriteString(" AND tenant = $2")
		}
	}
	return b.String(), args
}
