// Command example-producer demonstrates submitting a job directly
// against a RedisBackend, bypassing the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/samet-stack/ironforge/pkg/job"
	"github.com/samet-stack/ironforge/pkg/queue"
)

func main() {
	redisURL := "redis://127.0.0.1:6379"
	if v := os.Getenv("REDIS_URL"); v != "" {
		redisURL = v
	}

	fmt.Println("🔥 IronForge - example producer")

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	logger := zerolog.Nop()
	backend, err := queue.NewRedisBackend(ctx, client, logger)
	if err != nil {
		log.Fatalf("failed to initialize backend: %v", err)
	}

	payload, _ := json.Marshal(map[string]string{
		"to":       "user@example.com",
		"subject":  "Welcome!",
		"template": "welcome",
	})

	j := job.New("email.send", payload)
	j.Priority = job.High
	j.MaxRetries = 3

	fmt.Printf("📦 job created: %s (priority=%s)\n", j.ID, j.Priority)

	if err := backend.Enqueue(ctx, j); err != nil {
		log.Fatalf("enqueue failed: %v", err)
	}
	fmt.Println("✅ job submitted")

	stats, err := backend.GetStats(ctx)
	if err != nil {
		log.Fatalf("stats failed: %v", err)
	}
	fmt.Printf("📊 queue_depth=%d active_jobs=%d dlq_depth=%d\n",
		stats.QueueDepth, stats.ActiveJobs, stats.DLQDepth)
}
