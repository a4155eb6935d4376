package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"schoolattendance/internal/attendance"
	"schoolattendance/internal/auth"
	"schoolattendance/internal/cache"
	"schoolattendance/internal/cloudinary"
	"schoolattendance/internal/config"
	"schoolattendance/internal/directory"
	"schoolattendance/internal/handler"
	"schoolattendance/internal/httpmiddleware"
	"schoolattendance/internal/logging"
	"schoolattendance/internal/metrics"
	"schoolattendance/internal/observability"
	"schoolattendance/internal/photos"
	"schoolattendance/internal/queue"
	"schoolattendance/internal/store"
)

var version = "dev"

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

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, lg.Base); err != nil {
		lg.Base.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, lg *zap.Logger) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	cancel()
	if err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	usesRedis := cfg.CacheBackend != "memory" || cfg.QueueBackend != "memory"

	var statsCache cache.Cache
	if cfg.CacheBackend == "memory" {
		statsCache = cache.NewInMemory()
	} else {
		statsCache = cache.NewRedis(redisClient.Client, "school:")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(0)
		// no worker process reads the channel queue, so consume it here
		go func() {
			if err := queue.NewLogConsumer(q, lg).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	var storage photos.Storage
	if cfg.CloudinaryEnabled() {
		storage = photos.NewCloud(cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder))
		lg.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		storage = photos.NewDisk(cfg.PhotoDir, "/storage")
		lg.Info("storing photos on disk", zap.String("dir", cfg.PhotoDir))
	}

	notifier := queue.NewNotifier(q, lg, 2*time.Second, queue.DefaultNotifierBuffer)
	notifierDone := make(chan struct{})
	go func() {
		defer close(notifierDone)
		notifier.Run(ctx)
	}()

	attendanceSvc := attendance.NewService(
		attendance.NewRepository(db.Client),
		statsCache,
		cfg.StatsCacheTTL,
		cfg.Location(),
		notifier,
		lg,
	)
	students := directory.NewService(directory.NewRepository(db.Client), storage, cfg.PhotoMaxBytes, attendanceSvc, lg)
	signer := auth.NewSigner(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)

	checks := map[string]handler.Check{"db": db.Ping}
	if usesRedis {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Client.Ping(ctx).Err() }
	}

	h := handler.New(handler.Deps{
		Students:      students,
		Attendance:    attendanceSvc,
		Auth:          auth.NewService(auth.NewRepository(db.Client), signer),
		Signer:        signer,
		Log:           lg,
		MaxPhotoBytes: int64(cfg.PhotoMaxBytes),
		Checks:        checks,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(lg, "/healthz", "/metrics"))
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())
	r.Use(metrics.GinMiddleware())

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if !cfg.CloudinaryEnabled() {
		r.Static("/storage", cfg.PhotoDir)
	}
	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("starting server", zap.String("addr", srv.Addr), zap.String("queue", cfg.QueueBackend), zap.String("cache", cfg.CacheBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down server")

	// give outstanding requests 10 seconds to complete
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("server forced shutdown", zap.Error(err))
	}
	stop()
	<-notifierDone

	lg.Info("server exited")
	return nil
}
