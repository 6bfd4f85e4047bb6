package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rankline/scorerank/app/fetcher"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := fetcher.Initialize(ctx)
	if err != nil {
		panic(err)
	}

	// First tick immediately instead of waiting a full interval.
	app.Coordinator.TickNext(ctx)

	app.Start(ctx)
}
