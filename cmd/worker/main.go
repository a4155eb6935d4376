package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"schoolattendance/internal/config"
	"schoolattendance/internal/logging"
	"schoolattendance/internal/observability"
	"schoolattendance/internal/queue"
	"schoolattendance/internal/store"
)

var version = "dev"

// Worker consumes attendance notifications from the Redis queue and logs them.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Closer()

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, version)
	if err != nil {
		lg.Base.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	if cfg.QueueBackend == "memory" {
		lg.Base.Fatal("QUEUE_BACKEND=memory is consumed inside the API process; the worker needs redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		lg.Base.Info("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		lg.Base.Warn("redis not reachable yet, will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	lg.Base.Info("worker started, waiting for messages")
	consumer := queue.NewLogConsumer(queue.NewRedisQueue(redisClient.Client, ""), lg.Base)
	if err := consumer.Run(ctx); err != nil {
		observability.CaptureErr(err)
		lg.Base.Error("worker failed", zap.Error(err))
		return
	}
	lg.Base.Info("worker stopped")
}
