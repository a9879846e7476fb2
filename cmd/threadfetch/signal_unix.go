//go:build !windows

package main

import (
	"os"
	"syscall"
)

// backgroundSignals ask the queue to save without interrupting transfers
var backgroundSignals = []os.Signal{syscall.SIGUSR1}
