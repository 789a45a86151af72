// Package cancel provides a shareable cancellation flag for in-flight exchanges.
//
// A Token is set at most once. Setting it runs the registered close hooks,
// which sessions use to tear down the active transport connection so that a
// blocked read returns promptly instead of waiting for the next chunk.
//
//	tok := s.Token()
//	go func() {
//	    <-time.After(10 * time.Second)
//	    tok.Cancel()
//	}()
package cancel

import (
	"context"
	"sync"
	"sync/atomic"
)

// Token is a thread-safe, monotonic cancellation flag. The zero value is not
// usable; create tokens with New.
type Token struct {
	set  atomic.Bool
	done chan struct{}

	mu      sync.Mutex
	nextID  int
	closers map[int]func()
}

// New creates an unset token.
func New() *Token {
	return &Token{
		done:    make(chan struct{}),
		closers: make(map[int]func()),
	}
}

// Cancel sets the token. It returns true only for the call that performed the
// transition; later calls are no-ops.
func (t *Token) Cancel() bool {
	if !t.set.CompareAndSwap(false, true) {
		return false
	}
	close(t.done)

	t.mu.Lock()
	closers := t.closers
	t.closers = nil
	t.mu.Unlock()

	for _, fn := range closers {
		fn()
	}
	return true
}

// Cancelled reports whether the token has been set.
func (t *Token) Cancelled() bool {
	return t.set.Load()
}

// Done returns a channel that is closed when the token is set.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// OnCancel registers fn to run once when the token is set. If the token is
// already set, fn runs immediately. The returned function unregisters fn.
func (t *Token) OnCancel(fn func()) (stop func()) {
	t.mu.Lock()
	if t.closers == nil {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.closers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closers != nil {
			delete(t.closers, id)
		}
	}
}

// Context returns a context that is cancelled when either parent is done or
// the token is set. Callers must call the returned cancel function.
func (t *Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := t.OnCancel(func() { cancel(ErrCancelled) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// ErrCancelled is the context cause recorded when a token cancels a derived context.
var ErrCancelled = errCancelled{}

type errCancelled struct{}

func (errCancelled) Error() string { return "cancel: token set" }
