// Command example-worker demonstrates registering a handler and running
// the executor standalone, without the HTTP API.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/samet-stack/ironforge/pkg/executor"
	"github.com/samet-stack/ironforge/pkg/handler"
	"github.com/samet-stack/ironforge/pkg/job"
	"github.com/samet-stack/ironforge/pkg/queue"
)

func main() {
	redisURL := "redis://127.0.0.1:6379"
	if v := os.Getenv("REDIS_URL"); v != "" {
		redisURL = v
	}

	fmt.Println("🏭 IronForge - example worker")

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := queue.NewRedisBackend(ctx, client, logger)
	if err != nil {
		log.Fatalf("failed to initialize backend: %v", err)
	}

	registry := handler.NewRegistry()
	registry.Register("email.send", handler.Func(func(ctx context.Context, j *job.Job) error {
		fmt.Printf("📥 sending email for job %s: %s\n", j.ID, string(j.Payload))
		return nil
	}))

	exec := executor.New(backend, registry, executor.Config{WorkerCount: 2}, logger, nil)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("🛑 shutting down...")
		cancel()
	}()

	fmt.Println("⏳ waiting for jobs...")
	if err := exec.Run(ctx); err != nil {
		log.Fatalf("executor error: %v", err)
	}
}
