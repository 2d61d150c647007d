// Package codec wraps the self-describing binary encoder used for event
// payload/metadata bytes and for the cursor wire format.
//
// The underlying format is MessagePack via github.com/ugorji/go/codec. A
// msgpack handle is self-describing (unknown fields on decode are simply
// skipped) and round-trips the primitive types the cursor engine needs
// (u16, u32, string) without a schema.
package codec

import (
	"fmt"

	"github.com/ugorji/go/codec"
)

// handle is safe for concurrent use once configured, per ugorji/go/codec's
// own documentation, so a single package-level instance is shared.
var handle = newHandle()

func newHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.Canonical = true // deterministic map-key ordering for a given value
	return h
}

// Encode serializes value into the self-describing binary format.
func Encode(value any) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, handle)
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return buf, nil
}

// Decode deserializes data into out, which must be a non-nil pointer.
// Unknown fields present in data but absent from out's type are ignored,
// which is what gives the format forward compatibility across schema
// additions.
func Decode(data []byte, out any) error {
	dec := codec.NewDecoderBytes(data, handle)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("codec: decode: %w", err)
	}
	return nil
}
