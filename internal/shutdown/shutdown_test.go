package shutdown

import (
	"bytes"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_CancelOnce(t *testing.T) {
	tok := NewToken()
	assert.False(t, tok.Cancelled())

	select {
	case <-tok.Done():
		t.Fatal("done closed before cancel")
	default:
	}

	assert.True(t, tok.Cancel())
	assert.False(t, tok.Cancel())
	assert.True(t, tok.Cancelled())

	select {
	case <-tok.Done():
	default:
		t.Fatal("done not closed after cancel")
	}
}

func TestToken_ConcurrentCancel(t *testing.T) {
	tok := NewToken()
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tok.Cancel() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestWatch_SignalCancelsOnce(t *testing.T) {
	tok := NewToken()
	var out syncBuffer
	stop := Watch(tok, &out, syscall.SIGUSR1)
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-tok.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("token not cancelled by signal")
	}

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, "stopping gracefully...\n", out.String())
}

func TestWatch_StopIsIdempotent(t *testing.T) {
	tok := NewToken()
	stop := Watch(tok, nil, syscall.SIGUSR2)
	stop()
	stop()
	assert.False(t, tok.Cancelled())
}
