package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/convexa/nameforge/common/bootstrap"
	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/repository"
	"github.com/convexa/nameforge/common/server"
	"github.com/convexa/nameforge/common/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "propagation-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap propagation-worker: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	stores := repository.NewStores(components.DB)
	executor := engine.NewExecutor(
		stores,
		stores.Jobs,
		stores.Errors,
		components.Config.Engine,
		components.Logger,
	)
	runner := worker.NewRunner(
		executor,
		stores.Jobs,
		stores.Errors,
		components.Redis,
		components.Config.Worker,
		components.Logger,
	)

	topic := components.Config.Worker.QueueName
	err = components.Queue.Subscribe(ctx, topic, func(ctx context.Context, key string, value []byte) error {
		var req engine.QueuedJob
		if err := json.Unmarshal(value, &req); err != nil {
			components.Logger.Error("discarding malformed job payload", "key", key, "error", err)
			return nil
		}
		return runner.Run(ctx, &req)
	})
	if err != nil {
		components.Logger.Error("failed to subscribe", "topic", topic, "error", err)
		os.Exit(1)
	}

	components.Logger.Info("propagation worker ready",
		"topic", topic,
		"chunk_size", components.Config.Worker.ChunkSize,
	)

	// Health endpoint doubles as the blocking shutdown handler
	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HealthHandler())

	srv := server.New(
		components.Config.Service.Name,
		components.Config.Service.Port,
		mux,
		components.Logger,
	)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
