package monitor

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
)

// Lifecycle receives host backgrounding transitions.
type Lifecycle interface {
	Background(ctx context.Context) error
	Foreground(ctx context.Context) error
}

// SignalLifecycle forwards process signals to l until ctx is done: SIGUSR1
// backgrounds and SIGUSR2 foregrounds. The signal registration is removed
// before it returns.
func SignalLifecycle(ctx context.Context, l Lifecycle, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "lifecycle")

	sigCh := make(chan os.Signal, 1)
	if !notifyLifecycle(sigCh) {
		<-ctx.Done()
		return
	}
	defer signal.Stop(sigCh)
	forwardLifecycle(ctx, l, log, sigCh)
}

func forwardLifecycle(ctx context.Context, l Lifecycle, log *slog.Logger, sigCh <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			var err error
			if isBackground(sig) {
				err = l.Background(ctx)
			} else {
				err = l.Foreground(ctx)
			}
			if err != nil {
				log.Warn("lifecycle transition failed", "signal", sig, "error", err)
			}
		}
	}
}
