package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/corvid-labs/modelwire"
	"github.com/corvid-labs/modelwire/dispatch"
)

func main() {
	username := os.Getenv("MODELWIRE_USERNAME")
	password := os.Getenv("MODELWIRE_PASSWORD")
	host := os.Getenv("MODELWIRE_HOST")
	if host == "" {
		host = "example.com"
	}

	client := modelwire.New(
		modelwire.WithHost(host),
		modelwire.WithCredentials(username, password),
		modelwire.WithLogger(slog.Default()),
	)

	client.On("ANY", func(ev dispatch.Event) {
		slog.Debug("packet", "type", ev.Name)
	})

	ctx := context.Background()
	if err := client.ConnectAndWaitForModels(ctx); err != nil {
		log.Fatalf("main error: %v", err)
	}

	select {}
}
