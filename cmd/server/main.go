package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/api"
	"github.com/agrifield/backend/internal/auth"
	"github.com/agrifield/backend/internal/config"
	"github.com/agrifield/backend/internal/db"
	"github.com/agrifield/backend/internal/eventlog"
	"github.com/agrifield/backend/internal/ingestion"
	"github.com/agrifield/backend/internal/logger"
	"github.com/agrifield/backend/internal/notify"
	"github.com/agrifield/backend/internal/progress"
	"github.com/agrifield/backend/internal/queue"
	"github.com/agrifield/backend/internal/repository"
	"github.com/agrifield/backend/internal/scheduler"
	"github.com/agrifield/backend/internal/storage"
	"github.com/agrifield/backend/internal/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database.URL(), "./migrations"); err != nil {
		zl.Fatal("failed to run migrations", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zl.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	uploadQueue := queue.NewRedisQueue(redisClient, cfg.Ingest.QueueName)
	eventQueue := queue.NewRedisQueue(redisClient, cfg.EventLog.QueueName)
	progressStore := progress.NewRedisStore(redisClient, time.Duration(cfg.Ingest.ProgressTTLSeconds)*time.Second)

	farmRepo := repository.NewFarmRepository(conn.Pool)
	cropRepo := repository.NewCropRepository(conn.Pool)
	taskRepo := repository.NewTaskRepository(conn.Pool)
	userRepo := repository.NewUserRepository(conn.Pool)
	farmTaskRepo := repository.NewFarmTaskRepository(conn.Pool)
	farmCropRepo := repository.NewFarmCropRepository(conn.Pool)
	eventLogRepo := repository.NewEventLogRepository(conn.Pool)

	eventProducer := eventlog.NewProducer(eventQueue, cfg.EventLog.Disabled, zl)

	uploader, err := storage.NewMinioUploader(ctx, cfg.Storage, zl)
	if err != nil {
		zl.Fatal("failed to connect to object storage", zap.Error(err))
	}
	mailer := notify.NewMailer(cfg.Mail, cfg.Server.AppURL, userRepo, zl)

	validator := ingestion.NewRecordValidator(farmRepo, cropRepo, userRepo, conn.Pool, progressStore, cfg.Ingest.UploadDir, zl)
	batchProducer := ingestion.NewProducer(uploadQueue, cfg.Ingest.UploadDir, cfg.Ingest.BatchSize, zl)
	uploadService := ingestion.NewService(validator, batchProducer, progressStore, uploader, mailer, cfg.Ingest.BatchSize, zl)
	uploadHandler := ingestion.NewHTTPHandler(uploadService)

	reconciler := worker.NewReconciler(conn, farmRepo, cropRepo, taskRepo, userRepo, farmTaskRepo, farmCropRepo, eventProducer, zl)

	var wg sync.WaitGroup
	if !cfg.Ingest.Disabled {
		farmTaskWorker := worker.NewFarmTaskWorker(uploadQueue, progressStore, reconciler, cfg.Ingest.UploadDir, time.Second, zl)
		wg.Add(1)
		go func() {
			defer wg.Done()
			farmTaskWorker.Run(ctx)
		}()
	}
	if !cfg.EventLog.Disabled {
		eventLogWorker := worker.NewEventLogWorker(eventQueue, eventLogRepo, conn, cfg.EventLog.BatchLimit, time.Duration(cfg.EventLog.FlushIntervalMS)*time.Millisecond, zl)
		wg.Add(1)
		go func() {
			defer wg.Done()
			eventLogWorker.Run(ctx)
		}()
	}

	if !cfg.Scheduler.Disabled {
		shifter := scheduler.NewTaskShifter(cfg.Scheduler, farmTaskRepo, eventProducer, zl)
		if err := shifter.Start(); err != nil {
			zl.Fatal("failed to start task shifter", zap.Error(err))
		}
		defer shifter.Stop()
	}

	parser := auth.NewTokenParser(cfg.Auth.JWTSecret)
	farmTaskHandler := api.NewFarmTaskHandler(conn, farmTaskRepo, farmCropRepo, eventProducer, zl)
	entityHandler := api.NewEntityHandler(farmRepo, cropRepo, taskRepo, userRepo, eventProducer, zl)
	router := api.NewRouter(parser, uploadHandler, farmTaskHandler, entityHandler, zl)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zl.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}

	cancel()
	wg.Wait()
	zl.Info("server exited")
}
