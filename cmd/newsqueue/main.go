package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"newsqueue/configs"
	"newsqueue/internal/app/console"
	"newsqueue/internal/app/news"
	"newsqueue/internal/pkg/http"
	"newsqueue/internal/pkg/logger"
	"newsqueue/internal/pkg/observability/metrics"
	"newsqueue/internal/pkg/queue"
	memoryQueue "newsqueue/internal/pkg/queue/memory"
	redisQueue "newsqueue/internal/pkg/queue/redis"
	"newsqueue/internal/pkg/queue/sqs"
)

func main() {
	if err := configs.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := configs.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Setup(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := metrics.Setup(reg); err != nil {
			logger.Fatal("Failed to register metrics: %s", err)
		}
		http.StartHTTPServer(ctx, cfg.MetricsAddr, reg)
	}

	q, err := newQueueClient(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to create %s queue client: %s", cfg.Backend, err)
	}

	client := news.NewClient(q)
	defer client.Close()

	if err := client.EnsureQueueExists(ctx); err != nil {
		logger.Fatal("Failed to ensure queue %s exists: %s", configs.QueueName, err)
	}
	logger.Info("Queue %s ready on %s backend", configs.QueueName, cfg.Backend)

	c := console.New(client, console.NewInput(os.Stdin, os.Stdout), os.Stdout)
	if err := c.Run(ctx); err != nil {
		logger.Error("Console stopped: %s", err)
		client.Close()
		logger.Sync()
		os.Exit(1)
	}
}

func newQueueClient(ctx context.Context, cfg *configs.Config) (queue.QueueClient, error) {
	opts := queue.Options{
		QueueName:         configs.QueueName,
		VisibilityTimeout: cfg.QueueVisibilityTimeoutDur,
		MessageTTL:        cfg.QueueMessageTTLDur,
	}

	switch cfg.Backend {
	case configs.BackendSQS:
		client, err := sqs.NewClient(ctx, sqs.ClientConfig{
			Region:    cfg.SqsRegion,
			Endpoint:  cfg.SqsEndpoint,
			AccessKey: cfg.SqsAccessKey,
			SecretKey: cfg.SqsSecretKey,
		})
		if err != nil {
			return nil, err
		}
		return sqs.New(client, opts), nil
	case configs.BackendRedis:
		client, err := redisQueue.NewClient(cfg.ConnectionString)
		if err != nil {
			return nil, err
		}
		return redisQueue.New(client, cfg.QueueRedisKeyPrefix, opts), nil
	case configs.BackendMemory:
		return memoryQueue.New(opts), nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}
