package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifySignals wires SIGINT/SIGTERM into sigCh so installSignalHandler can
// cancel the run context for a graceful shutdown (spec.md §6's exit code 130
// for a canceled run).
func notifySignals(sigCh chan os.Signal) {
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
}
