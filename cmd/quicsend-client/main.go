// SPDX-License-Identifier: Apache-2.0

// Command quicsend-client dials a quicsend-server and issues one request,
// reading its body from stdin and printing the response to stdout — the same
// shape as the retrieved pack's own single-shot send commands.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/catid/quicsend/pkg/client"
	"github.com/catid/quicsend/pkg/mailbox"
)

func showHelp() {
	fmt.Printf("quicsend-client <configuration.toml> <METHOD> </path>\n\n")
	fmt.Printf("  sends data from stdin to the configured server\n\n")
	fmt.Printf("Examples:\n")
	fmt.Printf("  quicsend-client client.toml POST /upload <<< \"hello world\"\n")
}

func main() {
	args := os.Args[1:]
	if len(args) != 3 {
		showHelp()
		os.Exit(1)
	}
	configPath, method, path := args[0], args[1], args[2]

	cfg, err := client.LoadConfig(configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}

	pinnedDER, err := client.LoadPinnedCertDER(cfg.PinnedCertPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load pinned certificate")
	}

	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.WithError(err).Fatal("Failed to read stdin")
	}

	mbox := mailbox.New()
	cl := client.New(cfg, pinnedDER, mbox)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := cl.Connect(ctx); err != nil {
		log.WithError(err).Fatal("Connect failed")
	}
	defer cl.Close()

	stop := make(chan struct{})
	defer close(stop)
	responses := make(chan mailbox.Event, 1)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			mbox.Poll(func(e mailbox.Event) {
				log.WithField("event", e).Info("Mailbox event")
				if e.Kind.Kind == mailbox.Data && e.Kind.Direction == mailbox.Response {
					select {
					case responses <- e:
					default:
					}
				}
			}, 200*time.Millisecond)
		}
	}()

	if _, err := cl.SendRequest(ctx, method, path, nil, payload); err != nil {
		log.WithError(err).Fatal("SendRequest failed")
	}

	log.Info("Request sent, waiting for response event on the mailbox above")

	select {
	case e := <-responses:
		_, _ = os.Stdout.Write(e.Kind.Stream.Body())
	case <-ctx.Done():
		log.WithError(ctx.Err()).Warn("No response received")
	}
}
