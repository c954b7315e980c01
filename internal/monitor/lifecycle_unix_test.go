//go:build unix

package monitor

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingLifecycle struct {
	mu     sync.Mutex
	states []string
}

func (r *recordingLifecycle) Background(context.Context) error { return r.add("background") }
func (r *recordingLifecycle) Foreground(context.Context) error { return r.add("foreground") }

func (r *recordingLifecycle) add(s string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
	return nil
}

func (r *recordingLifecycle) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func TestForwardLifecycle(t *testing.T) {
	rec := &recordingLifecycle{}
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal)
	done := make(chan struct{})
	go func() {
		forwardLifecycle(ctx, rec, slog.New(slog.DiscardHandler), sigCh)
		close(done)
	}()

	sigCh <- syscall.SIGUSR1
	sigCh <- syscall.SIGUSR2
	sigCh <- syscall.SIGUSR1

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwardLifecycle did not return after cancel")
	}
	assert.Equal(t, []string{"background", "foreground", "background"}, rec.seen())
}

func TestSignalLifecycleReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		SignalLifecycle(ctx, &recordingLifecycle{}, nil)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SignalLifecycle did not return after cancel")
	}
}
