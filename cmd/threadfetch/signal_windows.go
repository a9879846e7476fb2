//go:build windows

package main

import "os"

var backgroundSignals []os.Signal
