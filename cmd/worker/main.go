package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"schemabridge/internal/app/bootstrap"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config and connect both databases.
// 2) Wait for the capture pipeline.
// 3) Run the old-to-new and new-to-old processors until signalled.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("schemabridge worker starting")
	app, err := bootstrap.BuildWorker(ctx)
	if err != nil {
		log.Fatalf("bootstrap worker failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("worker shutdown close failed: %v", err)
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Printf("schemabridge worker stopped with error: %v", err)
	}
}
