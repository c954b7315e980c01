//go:build !unix

package monitor

import "os"

// No user signals on this platform; lifecycle changes come through the
// HTTP API only.
func notifyLifecycle(chan<- os.Signal) bool { return false }

func isBackground(os.Signal) bool { return false }
