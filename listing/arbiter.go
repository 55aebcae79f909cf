package listing

import (
	"fmt"
	"sync"
)

// WriteFunc writes the final envelope to the client.
type WriteFunc func(Envelope) error

// Source identifies which path produced the response.
type Source string

const (
	SourceDeadline Source = "deadline"
	SourceCascade  Source = "cascade"
	SourceSample   Source = "sample"
	SourceEmpty    Source = "empty"
	SourceConnect  Source = "connect_failed"
	SourcePanic    Source = "panic"
)

// arbiter lets exactly one of the racing paths write the response.
type arbiter struct {
	once   sync.Once
	write  WriteFunc
	done   chan struct{}
	source Source
	err    error
}

func newArbiter(write WriteFunc) *arbiter {
	return &arbiter{write: write, done: make(chan struct{})}
}

// Send writes env if nothing has been written yet and reports whether this
// call did the write. Later calls are no-ops.
func (a *arbiter) Send(src Source, env Envelope) bool {
	sent := false
	a.once.Do(func() {
		defer close(a.done)
		defer func() {
			if r := recover(); r != nil {
				a.err = fmt.Errorf("listing: write panic: %v", r)
			}
		}()
		a.source = src
		sent = true
		a.err = a.write(env.withArrays())
	})
	return sent
}

// Sent reports whether a response has been written.
func (a *arbiter) Sent() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Done is closed once the response has been written.
func (a *arbiter) Done() <-chan struct{} {
	return a.done
}

// Result returns the winning source and the write error. Only valid after Done.
func (a *arbiter) Result() (Source, error) {
	return a.source, a.err
}
