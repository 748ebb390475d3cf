package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// signalHandler mirrors the server package's own graceful-shutdown
// trigger: a single channel that fires once on SIGINT/SIGTERM/SIGHUP,
// regardless of which of the three arrived.
func signalHandler(log *logrus.Entry) <-chan struct{} {
	stop := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig := <-sigs
		log.WithField("signal", sig).Info("signal received, shutting down")
		close(stop)
	}()
	return stop
}
