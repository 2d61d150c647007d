package store

import (
	"encoding/base64"
	"fmt"

	"go-seqstore/internal/codec"
)

// cursorWireVersion tags the binary shape of an encoded cursor so a future
// change to the ordering-key tuple can be detected on decode rather than
// silently misread.
const cursorWireVersion = 1

// Pageable is the set of static capabilities the Cursor Engine requires of
// a row type T, resolved at compile time rather than through a trait-object
// style interface value. Implementations are typically a single
// package-level value used as a type witness — see eventPageable in
// event.go.
type Pageable[T any] interface {
	// OrderingKeys returns the composite ordering key's column names, in
	// the order they must appear in both ORDER BY and the cursor tuple.
	OrderingKeys() []string

	// ToCursor extracts the ordering-key values from row as a Cursor.
	ToCursor(row T) Cursor
}

// Cursor is an opaque, decoded position in a totally ordered scan. It
// holds the ordering-key values in the same order as OrderingKeys().
type Cursor struct {
	Timestamp uint32
	Version   uint16
	ID        string
}

// cursorTuple is the wire shape encoded by the codec; a struct (rather than
// a bare slice) keeps field identity explicit across codec versions.
type cursorTuple struct {
	V         int
	Timestamp uint32
	Version   uint16
	ID        string
}

// Encode renders the cursor as base64url text with standard padding.
func (c Cursor) Encode() (string, error) {
	raw, err := codec.Encode(cursorTuple{
		V:         cursorWireVersion,
		Timestamp: c.Timestamp,
		Version:   c.Version,
		ID:        c.ID,
	})
	if err != nil {
		return "", codecErr("Cursor.Encode", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// DecodeCursor parses the opaque text produced by Cursor.Encode. A failure
// at either the base64 or binary layer is reported as a BadCursorError.
func DecodeCursor(text string) (Cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(text)
	if err != nil {
		return Cursor{}, &BadCursorError{
			StoreError: StoreError{Op: "DecodeCursor", Err: err},
			Cursor:     text,
		}
	}

	var tuple cursorTuple
	if err := codec.Decode(raw, &tuple); err != nil {
		return Cursor{}, &BadCursorError{
			StoreError: StoreError{Op: "DecodeCursor", Err: err},
			Cursor:     text,
		}
	}
	if tuple.V != cursorWireVersion {
		return Cursor{}, &BadCursorError{
			StoreError: StoreError{Op: "DecodeCursor", Err: fmt.Errorf("unsupported cursor wire version %d", tuple.V)},
			Cursor:     text,
		}
	}

	return Cursor{Timestamp: tuple.Timestamp, Version: tuple.Version, ID: tuple.ID}, nil
}

// values returns the ordering-key values in OrderingKeys() order, for use
// as bind parameters.
func (c Cursor) values() []any {
	return []any{c.Timestamp, c.Version, c.ID}
}
