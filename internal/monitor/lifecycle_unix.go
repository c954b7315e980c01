//go:build unix

package monitor

import (
	"os"
	"os/signal"
	"syscall"
)

func notifyLifecycle(ch chan<- os.Signal) bool {
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)
	return true
}

func isBackground(sig os.Signal) bool {
	return sig == syscall.SIGUSR1
}
