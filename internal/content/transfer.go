package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

var errMissingSink = errors.New("content: sink is required")

// Sink accepts a payload stream and returns the address it is hosted at.
type Sink interface {
	Put(ctx context.Context, body io.Reader, size int64) (string, error)
}

// Observer receives transfer progress as a percentage in [0, 100].
// Values never decrease; a failed transfer may stop short of 100.
type Observer func(percentage int)

// Transfer materializes a bytes pointer through sink and returns the resulting remote pointer.
// Remote pointers are returned unchanged. The observer is attached for this transfer only and is
// invoked on a separate goroutine so a slow observer never stalls the stream; all pending
// notifications are delivered before Transfer returns.
func Transfer(ctx context.Context, pointer Pointer, sink Sink, observer Observer) (Pointer, error) {
	switch pointer.kind {
	case KindRemote:
		if _, err := pointer.DirectURL(); err != nil {
			return Pointer{}, err
		}
		return pointer, nil
	case KindBytes:
	default:
		return Pointer{}, fmt.Errorf("%w: empty pointer", ErrUnresolvedContent)
	}
	if sink == nil {
		return Pointer{}, errMissingSink
	}
	if pointer.payload == nil || len(pointer.payload.data) == 0 {
		return Pointer{}, ErrEmptyPayload
	}
	if !pointer.payload.consumed.CompareAndSwap(false, true) {
		return Pointer{}, ErrContentConsumed
	}

	reporter := newProgressReporter(observer)
	defer reporter.close()

	data := pointer.payload.data
	reader := &progressReader{
		reader:   bytes.NewReader(data),
		total:    int64(len(data)),
		reporter: reporter,
	}
	reporter.report(0)

	address, err := sink.Put(ctx, reader, int64(len(data)))
	if err != nil {
		return Pointer{}, err
	}
	hosted := FromURL(address)
	if _, err := hosted.DirectURL(); err != nil {
		return Pointer{}, err
	}
	reporter.report(100)
	return hosted, nil
}

type progressReader struct {
	reader   io.Reader
	total    int64
	read     int64
	reporter *progressReporter
}

func (r *progressReader) Read(buffer []byte) (int, error) {
	n, err := r.reader.Read(buffer)
	if n > 0 {
		r.read += int64(n)
		percentage := int(r.read * 100 / r.total)
		// 100 is reserved for a confirmed transfer.
		if percentage >= 100 {
			percentage = 99
		}
		r.reporter.report(percentage)
	}
	return n, err
}

// progressReporter coalesces updates into a single-slot mailbox drained by one goroutine.
type progressReporter struct {
	observer Observer
	mu       sync.Mutex
	last     int
	updates  chan int
	done     chan struct{}
}

func newProgressReporter(observer Observer) *progressReporter {
	reporter := &progressReporter{observer: observer, last: -1}
	if observer == nil {
		return reporter
	}
	reporter.updates = make(chan int, 1)
	reporter.done = make(chan struct{})
	go func() {
		defer close(reporter.done)
		for percentage := range reporter.updates {
			reporter.observer(percentage)
		}
	}()
	return reporter
}

func (r *progressReporter) report(percentage int) {
	if r.updates == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if percentage <= r.last {
		return
	}
	r.last = percentage
	select {
	case r.updates <- percentage:
		return
	default:
	}
	// Replace the undelivered value with the newer one.
	select {
	case <-r.updates:
	default:
	}
	r.updates <- percentage
}

func (r *progressReporter) close() {
	if r.updates == nil {
		return
	}
	r.mu.Lock()
	close(r.updates)
	r.mu.Unlock()
	<-r.done
}
