package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	grpcapi "recording-transcription-service/internal/api/grpc"
	"recording-transcription-service/internal/app"
	"recording-transcription-service/internal/config"
	"recording-transcription-service/internal/events"
	apihttp "recording-transcription-service/internal/http"
	"recording-transcription-service/internal/observability"
	"recording-transcription-service/internal/service/reconcile"
	"recording-transcription-service/internal/service/recording"
	"recording-transcription-service/internal/service/stt"
	"recording-transcription-service/internal/service/stt/provider"
	"recording-transcription-service/internal/storage"
	"recording-transcription-service/internal/storage/audio"
	"recording-transcription-service/internal/storage/memory"
	"recording-transcription-service/internal/storage/postgres"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.Load()
	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	ctx := context.Background()

	store, err := openStore(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open record store")
	}
	if err := store.EnsureReady(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare record store")
	}

	bucket, err := audio.Open(ctx, cfg.Audio.BucketURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audio bucket")
	}

	engine, err := provider.New(ctx, cfg.STT)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create speech engine")
	}
	transcriber := stt.NewTranscriber(engine, bucket, stt.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BackoffBase: cfg.Retry.BackoffBase,
	})

	// Create Kafka publisher with separate topics for completed and failed recordings
	publisher := events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicCompleted: cfg.Kafka.TopicCompleted,
		TopicFailed:    cfg.Kafka.TopicFailed,
		Principal:      cfg.Kafka.Principal,
	})

	manager, err := recording.New(store, bucket, transcriber, publisher, recording.Config{
		Language: cfg.STT.Language,
		Reconcile: reconcile.Config{
			WindowSeconds:       cfg.Reconcile.WindowSeconds,
			SimilarityThreshold: cfg.Reconcile.SimilarityThreshold,
		},
		PoolSize:       cfg.Worker.PoolSize,
		ProcessTimeout: cfg.Worker.ProcessTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create recording manager")
	}

	application.MarkReady()
	ready := func(ctx context.Context) error {
		if err := application.Ready(ctx); err != nil {
			return err
		}
		return store.Ping(ctx)
	}

	obsServer := observability.NewServer(":"+cfg.Observability.MetricsPort, ready)
	obsServer.Start()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           apihttp.NewRouter(application, apihttp.NewHandler(manager, bucket)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("Recording transcription service HTTP API started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to listen for gRPC")
	}
	grpcServer := grpcapi.New()
	grpcServer.SetServing(true)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("gRPC serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	application.Shutdown()
	grpcServer.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	grpcServer.GracefulStop()
	if err := manager.Close(shutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("Worker pool did not drain in time")
	}
	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close event publisher")
	}
	if c, ok := engine.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close speech engine")
		}
	}
	if err := bucket.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close audio bucket")
	}
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close record store")
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Observability shutdown failed")
	}
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.New(), nil
	case "postgres":
		return postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
