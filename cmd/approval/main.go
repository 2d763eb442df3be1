package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"

	"github.com/cvdexinfo/acta-approval/internal/config"
	"github.com/cvdexinfo/acta-approval/internal/handler"
	"github.com/cvdexinfo/acta-approval/internal/kafka"
	"github.com/cvdexinfo/acta-approval/internal/logger"
	"github.com/cvdexinfo/acta-approval/internal/lookup"
	"github.com/cvdexinfo/acta-approval/internal/metrics"
	"github.com/cvdexinfo/acta-approval/internal/router"
	"github.com/cvdexinfo/acta-approval/internal/service"
	"github.com/cvdexinfo/acta-approval/internal/storage"
	"github.com/cvdexinfo/acta-approval/internal/sweeper"
	"github.com/cvdexinfo/acta-approval/pkg/observability"
)

const serviceName = "approval-service"

func main() {
	l := logger.NewLogger()
	slog.SetDefault(l)

	metrics.Init()

	if err := godotenv.Load(); err != nil {
		l.Info("No .env file loaded", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		l.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTELCollectorEndpoint != "" {
		tracerShutdown, err := observability.NewTracerProvider(ctx, serviceName, cfg.OTELCollectorEndpoint, l)
		if err != nil {
			l.Error("Failed to initialize TracerProvider", slog.Any("error", err))
			os.Exit(1)
		}
		defer tracerShutdown()
	}

	dbPool, err := storage.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		l.Error("Failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbPool.Close()

	store := storage.NewPostgresStore(dbPool)

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.ClientID = serviceName + "-producer"

	asyncProducer, err := sarama.NewAsyncProducer(cfg.KafkaBrokers, saramaConfig)
	if err != nil {
		l.Error("Failed to create sarama producer", slog.Any("error", err))
		os.Exit(1)
	}

	var wg sync.WaitGroup
	notifier := kafka.NewProducer(asyncProducer, cfg.KafkaNotifTopic, l, &wg)
	notifier.Start(ctx)
	defer notifier.Close(ctx)

	// Lookup strategy is fixed here, once, from configuration.
	tokens := lookup.ForConfig(cfg.TokenIndexName, store, l)

	approvalSvc := service.NewApprovalService(store, tokens, notifier, cfg.CallbackBaseURL, l)
	healthSvc := service.NewHealthService(store, l)

	swp := sweeper.New(store, l, cfg.TTL, cfg.SweepInterval, cfg.SweepBudget, cfg.SweepPageSize)
	go swp.Start(ctx)

	callbackHandler := handler.NewCallbackHandler(approvalSvc, l)
	issueHandler := handler.NewIssueHandler(approvalSvc, l)
	sweepHandler := handler.NewSweepHandler(swp, l)
	healthHandler := handler.NewHealthHandler(healthSvc, l)

	r := router.NewRouter(callbackHandler, issueHandler, sweepHandler, healthHandler)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		l.Info("Server started", slog.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Failed to start server", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	l.Info("Shutting down server...")
	cancel()

	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()

	if err := server.Shutdown(ctxTimeout); err != nil {
		l.Error("Shutdown failed", slog.Any("error", err))
	} else {
		l.Info("Server exited cleanly")
	}
}
