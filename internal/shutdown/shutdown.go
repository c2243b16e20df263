// Package shutdown holds the process-wide cancellation token and the signal
// handler that sets it.
package shutdown

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

// Token is set once, from false to true. The zero value is not usable; use
// NewToken.
type Token struct {
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
}

func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel reports true only for the call that flipped the token.
func (t *Token) Cancel() bool {
	flipped := false
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
		flipped = true
	})
	return flipped
}

func (t *Token) Cancelled() bool { return t.cancelled.Load() }

// Done is closed when the token is cancelled.
func (t *Token) Done() <-chan struct{} { return t.done }

// Watch cancels token on the first of signals and writes a notice to w.
// Further signals are ignored. The returned func stops watching.
func Watch(token *Token, w io.Writer, signals ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	quit := make(chan struct{})

	go func() {
		for {
			select {
			case <-quit:
				return
			case <-ch:
				if token.Cancel() && w != nil {
					fmt.Fprintln(w, "stopping gracefully...")
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
		})
	}
}
