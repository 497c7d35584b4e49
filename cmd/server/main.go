// IronForge Server - distributed job queue daemon
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/samet-stack/ironforge/pkg/api"
	"github.com/samet-stack/ironforge/pkg/executor"
	"github.com/samet-stack/ironforge/pkg/handler"
	"github.com/samet-stack/ironforge/pkg/metrics"
	"github.com/samet-stack/ironforge/pkg/queue"
)

func main() {
	redisURL := flag.String("redis-url", "redis://127.0.0.1:6379", "Redis connection URL")
	bindAddr := flag.String("bind-addr", "127.0.0.1:3000", "HTTP API bind address")
	workerCount := flag.Int("workers", 4, "Number of concurrent worker goroutines")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if v := os.Getenv("REDIS_URL"); v != "" {
		*redisURL = v
	}
	if v := os.Getenv("BIND_ADDR"); v != "" {
		*bindAddr = v
	}

	printBanner()

	logLevel := zerolog.InfoLevel
	if *verbose {
		logLevel = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(logLevel).With().Timestamp().Str("component", "ironforge").Logger()

	opts, err := redis.ParseURL(*redisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL %q: %v", *redisURL, err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to redis at %s: %v", *redisURL, err)
	}
	log.Printf("✅ connected to redis at %s", *redisURL)

	recorder := metrics.New()

	alerter := queue.NewLogAlerter(func(format string, args ...any) {
		logger.Warn().Msg(fmt.Sprintf(format, args...))
	})
	backend, err := queue.NewRedisBackend(ctx, client, logger, alerter)
	if err != nil {
		log.Fatalf("failed to initialize queue backend: %v", err)
	}
	log.Printf("📦 queue backend ready")

	registry := handler.NewRegistry()
	exec := executor.New(backend, registry, executor.Config{WorkerCount: *workerCount}, logger, recorder)
	log.Printf("🔄 executor configured with %d workers", *workerCount)

	server := api.NewServer(api.Config{
		Addr:     *bindAddr,
		Backend:  backend,
		Recorder: recorder,
		Logger:   logger,
	})

	execDone := make(chan struct{})
	go func() {
		defer close(execDone)
		if err := exec.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("executor stopped with error")
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("🛑 shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api server shutdown error")
		}
		<-execDone
		client.Close()
	}()

	log.Printf("🚀 IronForge API listening on http://%s", *bindAddr)
	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}

	<-execDone
}

func printBanner() {
	fmt.Println(`
   ___                ______
  /   |  _____  ____  / ____/___  _________ ____
 / /| | / __ \ / __ \/ /_  / __ \/ ___/ __ \/ __ \
/ ___ |/ /_/ // /_/ / __/ / /_/ / /  / /_/ / /_/ /
/_/  |_|\____/ \____/_/    \____/_/   \____/\____/

  Distributed job queue
  `)
}
