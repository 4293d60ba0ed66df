//go:build windows

package main

import "os"

// shutdownSignals stop the daemon gracefully. Windows has no SIGTERM; the
// runtime maps CTRL_BREAK_EVENT and console close to os.Interrupt.
var shutdownSignals = []os.Signal{os.Interrupt}
