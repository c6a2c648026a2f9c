package content

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
)

// Kind distinguishes hosted content from bytes that still need a transfer.
type Kind int

const (
	// KindUnset is the zero value; such a pointer resolves to nothing.
	KindUnset Kind = iota
	// KindRemote points at content that is fetchable by address.
	KindRemote
	// KindBytes holds raw bytes pending transfer.
	KindBytes
)

var (
	// ErrUnresolvedContent indicates the pointer cannot be resolved to a fetchable address.
	ErrUnresolvedContent = errors.New("content: unresolved content")
	// ErrContentConsumed indicates a bytes pointer was already handed to a transfer.
	ErrContentConsumed = errors.New("content: bytes already transferred")
	// ErrEmptyPayload indicates a bytes pointer without data.
	ErrEmptyPayload = errors.New("content: empty payload")
)

// Pointer represents a binary payload either as a remote address or as bytes awaiting transfer.
// Copies of a bytes pointer share the consumed marker, so the payload is transferred at most once.
type Pointer struct {
	kind    Kind
	address string
	payload *payload
}

type payload struct {
	data     []byte
	consumed atomic.Bool
}

// FromURL wraps an already hosted address.
func FromURL(address string) Pointer {
	return Pointer{kind: KindRemote, address: strings.TrimSpace(address)}
}

// FromBytes wraps raw bytes for transfer. The caller must not mutate data afterwards.
func FromBytes(data []byte) Pointer {
	return Pointer{kind: KindBytes, payload: &payload{data: data}}
}

// Kind reports which variant the pointer holds.
func (p Pointer) Kind() Kind {
	return p.kind
}

// IsZero reports whether the pointer was never initialised.
func (p Pointer) IsZero() bool {
	return p.kind == KindUnset
}

// Size returns the payload length for bytes pointers and zero otherwise.
func (p Pointer) Size() int64 {
	if p.kind != KindBytes || p.payload == nil {
		return 0
	}
	return int64(len(p.payload.data))
}

// Consumed reports whether a bytes pointer has been handed to a transfer.
func (p Pointer) Consumed() bool {
	return p.kind == KindBytes && p.payload != nil && p.payload.consumed.Load()
}

// Bytes exposes the raw payload of a bytes pointer.
func (p Pointer) Bytes() ([]byte, error) {
	if p.kind != KindBytes || p.payload == nil {
		return nil, fmt.Errorf("%w: not a bytes pointer", ErrUnresolvedContent)
	}
	return p.payload.data, nil
}

// DirectURL resolves a remote pointer to an absolute, directly fetchable address.
func (p Pointer) DirectURL() (string, error) {
	switch p.kind {
	case KindRemote:
	case KindBytes:
		return "", fmt.Errorf("%w: bytes not yet materialized", ErrUnresolvedContent)
	default:
		return "", fmt.Errorf("%w: empty pointer", ErrUnresolvedContent)
	}
	parsed, err := url.Parse(p.address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolvedContent, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrUnresolvedContent, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrUnresolvedContent)
	}
	return parsed.String(), nil
}

func (p Pointer) String() string {
	switch p.kind {
	case KindRemote:
		return p.address
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", p.Size())
	default:
		return "unset"
	}
}
