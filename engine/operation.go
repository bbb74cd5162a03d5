package engine

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
)

// OperationID identifies a long-running operation owned by a handle.
type OperationID uint64

// Operation is the cancellable handle returned for long-running work. The
// caller observes progress as a fraction in [0, 1], waits on Done, then
// collects the result or error.
type Operation struct {
	id     OperationID
	cancel context.CancelFunc

	progress atomic.Uint64 // float64 bits

	done   chan struct{}
	mu     sync.Mutex
	result interface{}
	err    error
}

func newOperation(id OperationID, cancel context.CancelFunc) *Operation {
	return &Operation{id: id, cancel: cancel, done: make(chan struct{})}
}

// ID returns the operation id used with Cancel.
func (o *Operation) ID() OperationID {
	return o.id
}

// Progress returns the completed fraction in [0, 1].
func (o *Operation) Progress() float64 {
	return math.Float64frombits(o.progress.Load())
}

func (o *Operation) setProgress(f float64) {
	o.progress.Store(math.Float64bits(f))
}

// Done is closed when the operation finishes, successfully or not.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Cancel requests cooperative cancellation. Partial results already
// committed remain available.
func (o *Operation) Cancel() {
	o.cancel()
}

// Wait blocks until completion or ctx expiry and returns the operation
// error.
func (o *Operation) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return o.Err()
	}
}

// Err returns the terminal error, nil while running or on success.
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Result returns the terminal result, nil until Done is closed.
func (o *Operation) Result() interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

func (o *Operation) finish(result interface{}, err error) {
	o.mu.Lock()
	o.result = result
	o.err = err
	o.mu.Unlock()
	close(o.done)
}
