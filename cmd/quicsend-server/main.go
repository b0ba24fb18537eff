// SPDX-License-Identifier: Apache-2.0

// Command quicsend-server runs the server-variant EndpointRouter (§4.5)
// against a TOML configuration file, logging every Mailbox event until it
// receives SIGINT.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/catid/quicsend/pkg/mailbox"
	"github.com/catid/quicsend/pkg/server"
)

// waitSigint blocks until a SIGINT appears, following the same
// signal-to-channel shutdown pattern used throughout the retrieved pack's
// own daemon commands.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signal.Notify(signalSyn, os.Interrupt)
	<-signalSyn
}

// pollMailbox drains the shared Mailbox until stop is closed, logging each
// event (§4.2's embedder poll loop).
func pollMailbox(mbox *mailbox.Mailbox, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		mbox.Poll(func(e mailbox.Event) {
			log.WithField("event", e).Info("Mailbox event")
		}, 200*time.Millisecond)
	}
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	cfg, err := server.LoadConfig(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}

	mbox := mailbox.New()
	srv, err := server.New(cfg, mbox)
	if err != nil {
		log.WithError(err).Fatal("Failed to build server")
	}

	stop := make(chan struct{})
	go pollMailbox(mbox, stop)

	go func() {
		if err := srv.Serve(context.Background()); err != nil {
			log.WithError(err).Fatal("Serve failed")
		}
	}()

	log.WithField("listen_addr", cfg.ListenAddr).Info("quicsend-server listening")

	waitSigint()
	log.Info("Shutting down..")

	if err := srv.Close(); err != nil {
		log.WithError(err).Warn("Errors while closing server")
	}
	close(stop)
}
