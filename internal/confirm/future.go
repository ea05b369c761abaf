package confirm

import (
	"context"
	"sync"
)

// Future is the in-flight result of a confirmation request. Every caller
// that requested confirmation for the same server before settlement shares
// the same Future, so all of them observe the identical result at the
// identical instant.
//
// A Future settles exactly once; later settlement attempts are no-ops.
type Future struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	result  Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// settledFuture returns a Future that is already settled with r.
func settledFuture(r Result) *Future {
	f := newFuture()
	f.settle(r)
	return f
}

// settle assigns the result and closes the done channel. It returns false
// if the future was already settled, in which case nothing changes.
func (f *Future) settle(r Result) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settled {
		return false
	}
	f.settled = true
	f.result = r
	close(f.done)
	return true
}

// Done returns a channel that is closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the settled result. The second return is false while the
// future is still pending.
func (f *Future) Result() (Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.settled
}

// Await blocks until the future settles or ctx expires. On context expiry
// the zero Result and ctx.Err() are returned; the future itself is not
// affected and may still settle later.
func (f *Future) Await(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.result, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
