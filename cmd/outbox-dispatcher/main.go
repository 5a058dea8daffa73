package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dsrph/registry_backend/config"
	"github.com/dsrph/registry_backend/workflow"
)

func main() {
	once := flag.Bool("once", false, "Run a single dispatch pass and exit")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher, err := workflow.NewPubSubPublisher(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pubsub publisher: %v\n", err)
		os.Exit(1)
	}

	stores := workflow.NewStores(db)
	dispatcher := workflow.NewOutboxDispatcher(stores.Outbox, publisher, logger)

	if *once {
		published, err := dispatcher.DispatchOnce(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dispatch failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("published %d events\n", published)
		return
	}

	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "dispatcher stopped: %v\n", err)
		os.Exit(1)
	}
}
