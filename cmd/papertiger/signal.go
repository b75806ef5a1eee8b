package main

import (
	"os"
	"os/signal"
	"syscall"
)

// waitForSignal blocks until the process receives SIGINT or SIGTERM.
func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
}
