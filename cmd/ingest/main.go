package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/chronicler-ai/chronicler/internal/config"
	"github.com/chronicler-ai/chronicler/internal/db"
	"github.com/chronicler-ai/chronicler/internal/ingest"
	"github.com/chronicler-ai/chronicler/internal/util"
	"github.com/chronicler-ai/chronicler/pkg/logger"
	"github.com/chronicler-ai/chronicler/pkg/logger/console"
	"github.com/chronicler-ai/chronicler/pkg/pipeline/queuestore"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	pgConn, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	queueStore := queuestore.NewStore(pgConn, queuestore.NewStoreParams{
		ClaimTTL: cfg.ClaimTTL,
	})

	conn, err := ingest.Dial(ingest.DialParams{
		User:     cfg.RabbitMQUser,
		Password: cfg.RabbitMQPassword,
		Host:     cfg.RabbitMQHost,
		Port:     cfg.RabbitMQPort,
	})
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	consumer, err := ingest.NewConsumer(conn, cfg.IngestQueue, queueStore)
	if err != nil {
		logger.Fatal("Failed to create consumer", "err", err)
	}
	defer consumer.Close()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Consumer stopped unexpectedly", "err", err)
	}
	logger.Info("Shutdown complete")
}
