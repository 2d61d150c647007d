package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// pollInterval is the idle wait between empty polls.
const pollInterval = 150 * time.Millisecond

// SchemeKind distinguishes the two delivery models a subscription URL can
// select.
type SchemeKind int

const (
	SchemePersistent SchemeKind = iota
	SchemeNonPersistent
)

// subscriptionURL is the parsed form of a "{scheme}://{topic}[?tenant=...]"
// subscription address.
type subscriptionURL struct {
	scheme SchemeKind
	topic  string
	tenant string
}

func parseSubscriptionURL(raw string) (subscriptionURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return subscriptionURL{}, &BadSchemeError{
			StoreError: StoreError{Op: "parseSubscriptionURL", Err: err},
			Scheme:     raw,
		}
	}

	var kind SchemeKind
	switch u.Scheme {
	case "persistent":
		kind = SchemePersistent
	case "non-persistent":
		kind = SchemeNonPersistent
	default:
		return subscriptionURL{}, &BadSchemeError{
			StoreError: StoreError{Op: "parseSubscriptionURL", Err: errors.New("unrecognized scheme")},
			Scheme:     u.Scheme,
		}
	}

	// topic = host + path, concatenated literally.
	topic := u.Host + u.Path

	return subscriptionURL{
		scheme: kind,
		topic:  topic,
		tenant: u.Query().Get("tenant"),
	}, nil
}

// Delivery is one event handed to a subscriber, carrying the cursor that
// resumes the stream immediately after it.
type Delivery struct {
	Cursor string
	Event  Event
}

// Subscription is a long-lived poll loop over the event log: a single
// goroutine feeding a channel, torn down by canceling ctx. A receiver that
// stops draining Deliveries does not end the loop: once the channel buffer
// is full, the goroutine waits on its next send until ctx is canceled.
type Subscription struct {
	id       string
	url      subscriptionURL
	workerID string

	deliveries chan Delivery
	errs       chan error
}

// Deliveries returns the channel of events yielded by the subscription.
// Within one persistent consumer id, events are delivered in log order.
func (s *Subscription) Deliveries() <-chan Delivery { return s.deliveries }

// Err returns the channel on which a terminal backend error, if any, is
// published exactly once before Deliveries is closed. The poll loop itself
// ends silently on eviction or cancellation; this channel is the signal
// layered on top for a genuine backend failure.
func (s *Subscription) Err() <-chan error { return s.errs }

// Stream attaches a subscription at url and starts its poll loop in a
// background goroutine. Canceling ctx stops the loop at its next
// suspension point.
func Stream(ctx context.Context, executor Executor, id, rawURL string) (*Subscription, error) {
	parsed, err := parseSubscriptionURL(rawURL)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		id:         id,
		url:        parsed,
		deliveries: make(chan Delivery, 16),
		errs:       make(chan error, 1),
	}

	var cursor *Cursor
	switch parsed.scheme {
	case SchemeNonPersistent:
		c, err := tailCursor(ctx, executor, parsed.topic, parsed.tenant)
		if err != nil {
			return nil, err
		}
		cursor = c

	case SchemePersistent:
		workerID, err := newEventID()
		if err != nil {
			return nil, backendErr("Stream", err)
		}
		sub.workerID = workerID

		c, err := attachConsumer(ctx, executor, id, workerID)
		if err != nil {
			return nil, err
		}
		cursor = c
	}

	go sub.pollLoop(ctx, executor, cursor)
	return sub, nil
}

func (s *Subscription) pollLoop(ctx context.Context, executor Executor, cursor *Cursor) {
	defer close(s.deliveries)

	after := ""
	if cursor != nil {
		encoded, err := cursor.Encode()
		if err != nil {
			s.errs <- err
			return
		}
		after = encoded
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.url.scheme == SchemePersistent {
			owned, err := ownsConsumer(ctx, executor, s.id, s.workerID)
			if err != nil {
				s.errs <- err
				return
			}
			if !owned {
				// Evicted by a newer attach on the same consumer id; terminate
				// without error.
				return
			}
		}

		sql, binds := selectEventsSQL(s.url.topic, s.url.tenant)
		engine := NewCursorEngine[Event](eventPageable{}, scanEventRow, sql)
		for _, b := range binds {
			engine.Bind(b)
		}
		page, err := engine.Forward(1, after).Query(ctx, executor)
		if err != nil {
			s.errs <- err
			return
		}

		if len(page.Edges) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
				continue
			}
		}

		edge := page.Edges[0]
		select {
		case s.deliveries <- Delivery{Cursor: edge.Cursor, Event: edge.Node}:
			after = edge.Cursor
		case <-ctx.Done():
			return
		}
	}
}

// tailCursor returns the cursor of the most recent matching event, or nil
// if the log (filtered by topic/tenant) is empty — the attach point for a
// non-persistent subscriber, which only ever sees events appended after it
// attaches.
func tailCursor(ctx context.Context, executor Executor, topic, tenant string) (*Cursor, error) {
	sql, binds := selectEventsSQL(topic, tenant)
	engine := NewCursorEngine[Event](eventPageable{}, scanEventRow, sql)
	for _, b := range binds {
		engine.Bind(b)
	}
	page, err := engine.Backward(1, "").Query(ctx, executor)
	if err != nil {
		return nil, err
	}
	if len(page.Edges) == 0 {
		return nil, nil
	}
	c := eventPageable{}.ToCursor(page.Edges[0].Node)
	return &c, nil
}

// attachConsumer upserts the consumer row, evicting any previous worker_id
// holder, and returns its current cursor.
func attachConsumer(ctx context.Context, executor Executor, id, workerID string) (*Cursor, error) {
	sql := fmt.Sprintf(`
		INSERT INTO %[1]s (id, worker_id, cursor, updated_at)
		VALUES ($1, $2, NULL, now())
		ON CONFLICT (id) DO UPDATE SET worker_id = $2, updated_at = now()
		RETURNING cursor
	`, consumerTable)

	var cursorText *string
	if err := executor.QueryRow(ctx, sql, id, workerID).Scan(&cursorText); err != nil {
		return nil, backendErr("attachConsumer", err)
	}
	if cursorText == nil {
		return nil, nil
	}
	c, err := DecodeCursor(*cursorText)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ownsConsumer reports whether workerID is still the consumer row's
// current holder.
func ownsConsumer(ctx context.Context, executor Executor, id, workerID string) (bool, error) {
	sql := fmt.Sprintf(`SELECT worker_id FROM %s WHERE id = $1`, consumerTable)

	var current string
	err := executor.QueryRow(ctx, sql, id).Scan(&current)
	if err != nil {
		return false, backendErr("ownsConsumer", err)
	}
	return current == workerID, nil
}

// Ack persists the caller's acknowledged cursor for a persistent consumer.
// No worker_id check is required here: an evicted worker acking a stale
// cursor is harmless, since a newer attach already owns delivery. It also
// always touches updated_at, even when the cursor is unchanged.
func Ack(ctx context.Context, executor Executor, id string, cursor Cursor) error {
	text, err := cursor.Encode()
	if err != nil {
		return err
	}

	sql := fmt.Sprintf(`UPDATE %s SET cursor = $1, updated_at = now() WHERE id = $2`, consumerTable)
	if _, err := executor.Exec(ctx, sql, text, id); err != nil {
		return backendErr("Ack", err)
	}
	return nil
}

// Unack is reserved for a dead-letter/retry policy. No such policy is
// implemented yet; this is a documented no-op rather than a guess at one.
func Unack(ctx context.Context, executor Executor, id, eventID, reason string) error {
	return nil
}
