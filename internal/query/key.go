package query

import (
	"strconv"
	"strings"
)

// Key identifies a cache entry by an ordered tuple of identifiers.
// Two keys address the same entry iff they have the same length and equal components.
type Key []string

// NewKey builds a key from its components.
func NewKey(parts ...string) Key {
	return Key(append([]string(nil), parts...))
}

// Equal reports whether both keys address the same entry.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for index := range k {
		if k[index] != other[index] {
			return false
		}
	}
	return true
}

// String renders the key unambiguously; it doubles as the entry map index.
func (k Key) String() string {
	var builder strings.Builder
	builder.WriteByte('[')
	for index, part := range k {
		if index > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.Quote(part))
	}
	builder.WriteByte(']')
	return builder.String()
}
