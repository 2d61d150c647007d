package store

import "go.jetify.com/typeid"

// newEventID returns a fresh, globally unique, lexicographically
// time-sortable 26-character identifier. A typeid's suffix is the bare
// Crockford-base32 ULID; we never prefix it, since event IDs here are
// opaque sortable strings, not type-tagged identifiers.
func newEventID() (string, error) {
	tid, err := typeid.WithPrefix("")
	if err != nil {
		return "", err
	}
	return tid.Suffix(), nil
}
