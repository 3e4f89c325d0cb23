package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/dhima/mysql-connector/internal/api"
	"github.com/dhima/mysql-connector/internal/audit"
	"github.com/dhima/mysql-connector/internal/logging"
	"github.com/dhima/mysql-connector/internal/refresh"
	"github.com/dhima/mysql-connector/internal/session"
	"github.com/dhima/mysql-connector/pkg/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("mysql-connector stopped: %v", err)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher := newPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("failed to close audit publisher", zap.Error(err))
		}
	}()

	sess := session.New(
		session.WithLogger(logger),
		session.WithPublisher(publisher),
	)
	defer func() {
		if err := sess.Shutdown(); err != nil {
			logger.Warn("failed to shut down session", zap.Error(err))
		}
	}()

	configureCtx, cancel := context.WithTimeout(ctx, cfg.DBConnectTimeout)
	err = sess.Configure(configureCtx, session.Params{
		Server:         cfg.DBHost,
		Port:           cfg.DBPort,
		Database:       cfg.DBName,
		User:           cfg.DBUser,
		Password:       cfg.DBPassword,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("configure session: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.RefreshCron != "" {
		engine, err := refresh.NewEngine(cfg.RefreshCron, sess, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return engine.Run(gctx) })
	}

	server := api.NewServer(cfg, logger, sess)
	g.Go(func() error { return server.Serve(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newPublisher publishes audit events to Kafka when brokers are configured
// and drops them otherwise.
func newPublisher(cfg config.App, logger logging.Logger) audit.Publisher {
	if !cfg.AuditEnabled() {
		logger.Info("audit publishing disabled, no Kafka brokers configured")
		return audit.NoopPublisher{}
	}
	logger.Info("publishing audit events to Kafka",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic))
	return audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
}
