package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chronicler-ai/chronicler/internal/archive"
	"github.com/chronicler-ai/chronicler/internal/config"
	"github.com/chronicler-ai/chronicler/internal/db"
	"github.com/chronicler-ai/chronicler/internal/util"
	"github.com/chronicler-ai/chronicler/pkg/ai"
	"github.com/chronicler-ai/chronicler/pkg/ai/ollama"
	"github.com/chronicler-ai/chronicler/pkg/ai/openai"
	"github.com/chronicler-ai/chronicler/pkg/graph"
	"github.com/chronicler-ai/chronicler/pkg/leaselock"
	"github.com/chronicler-ai/chronicler/pkg/logger"
	"github.com/chronicler-ai/chronicler/pkg/logger/console"
	"github.com/chronicler-ai/chronicler/pkg/oracle"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
	"github.com/chronicler-ai/chronicler/pkg/pipeline/queuestore"
	"github.com/chronicler-ai/chronicler/pkg/pipeline/worker"
	"github.com/chronicler-ai/chronicler/pkg/stages"
	storepgx "github.com/chronicler-ai/chronicler/pkg/store/pgx"
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

	aiClient := newAIClient(cfg)
	oracleClient := oracle.NewLLMOracle(aiClient, cfg.ChatModel)

	queueStore := queuestore.NewStore(pgConn, queuestore.NewStoreParams{
		ClaimTTL: cfg.ClaimTTL,
	})
	graphStore := storepgx.NewGraphDBStorage(pgConn, aiClient, storepgx.NewGraphDBStorageParams{
		MinSimilarity: cfg.SimilarityMinScore,
	})
	locks := leaselock.New(pgConn)

	engine := graph.NewEngine(graphStore, oracleClient, locks, graph.Config{
		CanonicalUser:      cfg.CanonicalUser,
		CanonicalAssistant: cfg.CanonicalAssistant,
		TaxonomyCategories: cfg.TaxonomyCategories,
		MaxMergeRetries:    cfg.MergeRetries,
		SimilarityTopK:     cfg.SimilarityTopK,
	})
	if err := engine.Bootstrap(ctx); err != nil {
		logger.Fatal("Failed to bootstrap singleton nodes", "err", err)
	}

	var archiver queuestore.Archiver
	if cfg.ArchiveBucket != "" {
		s3Client, err := archive.NewS3Client(ctx, archive.NewS3ClientParams{
			Region:    cfg.AWSRegion,
			Endpoint:  cfg.AWSEndpoint,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
		})
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		archiver = archive.NewChunkArchiver(s3Client, cfg.ArchiveBucket)
		logger.Info("Chunk archival enabled", "bucket", cfg.ArchiveBucket)
	}

	handlers := map[pipeline.Stage]worker.Handler{
		pipeline.StageResolve: stages.NewResolver(oracleClient, queueStore, stages.ResolverConfig{
			CanonicalUser:      cfg.CanonicalUser,
			CanonicalAssistant: cfg.CanonicalAssistant,
		}),
		pipeline.StageBoundary: stages.NewSegmenter(oracleClient, stages.BoundaryConfig{
			WindowSize: cfg.BoundaryWindow,
			FlushAfter: cfg.BoundaryFlushAfter,
		}),
		pipeline.StageAtomize: stages.NewAtomizer(oracleClient),
		pipeline.StageExtract: stages.NewExtractor(oracleClient, stages.ExtractorConfig{
			CanonicalUser:      cfg.CanonicalUser,
			CanonicalAssistant: cfg.CanonicalAssistant,
		}),
		pipeline.StageEnrich: stages.NewEnricher(oracleClient),
		pipeline.StageMerge:  engine.NewMergeHandler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return stages.RunWindower(gctx, stages.WindowerConfig{
			WindowSize:  cfg.WindowSize,
			Overlap:     cfg.WindowOverlap,
			FlushAfter:  cfg.WindowFlushAfter,
			IdleBackoff: cfg.IdleBackoff,
		}, queueStore)
	})

	for stage, handler := range handlers {
		maxBatch := cfg.MaxBatch
		if stage == pipeline.StageBoundary {
			// The segmenter needs the full sliding window in one claim.
			maxBatch = cfg.BoundaryWindow
		}
		workerCfg := worker.Config{
			Stage:       stage,
			MaxBatch:    maxBatch,
			IdleBackoff: cfg.IdleBackoff,
		}
		h := handler
		g.Go(func() error {
			return worker.RunForever(gctx, workerCfg, queueStore, h)
		})
	}

	g.Go(func() error {
		return runStatusLoop(gctx, cfg.StatusInterval, queueStore)
	})
	g.Go(func() error {
		return runPruneLoop(gctx, cfg.PruneRetention, cfg.PruneInterval, queueStore, archiver)
	})

	logger.Info("Pipeline running", "stages", len(handlers))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Pipeline stopped unexpectedly", "err", err)
	}
	logger.Info("Shutdown complete")
}

func newAIClient(cfg config.Config) ai.Client {
	switch cfg.OracleAdapter {
	case "ollama":
		client, err := ollama.NewOllamaClient(ollama.NewOllamaClientParams{
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
			BaseURL:        cfg.ChatURL,
			ApiKey:         cfg.ChatKey,
			RequestTimeout: cfg.OracleTimeout,
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		return client
	default:
		return openai.NewOpenAIClient(openai.NewOpenAIClientParams{
			ChatModel:         cfg.ChatModel,
			EmbeddingModel:    cfg.EmbeddingModel,
			ChatURL:           cfg.ChatURL,
			ChatKey:           cfg.ChatKey,
			EmbeddingURL:      cfg.EmbeddingURL,
			EmbeddingKey:      cfg.EmbeddingKey,
			RequestTimeout:    cfg.OracleTimeout,
			RequestsPerMinute: cfg.RequestsPerMinute,
		})
	}
}

func runStatusLoop(ctx context.Context, interval time.Duration, store *queuestore.Store) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			for _, stage := range pipeline.Stages {
				status, err := store.StageStatus(ctx, stage)
				if err != nil {
					logger.Error("[Status] Failed to read stage status", "stage", stage, "err", err)
					continue
				}
				logger.Info("[Status] Stage",
					"stage", status.Stage,
					"queue_depth", status.QueueDepth,
					"last_processed", status.LastProcessed.Format(time.RFC3339),
					"failures", status.FailureCount)
			}
		}
	}
}

func runPruneLoop(
	ctx context.Context,
	retention, interval time.Duration,
	store *queuestore.Store,
	archiver queuestore.Archiver,
) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			for _, stage := range pipeline.Stages {
				pruned, err := store.PruneCompleted(ctx, stage, retention, 0, archiver)
				if err != nil {
					logger.Error("[Prune] Failed to prune stage", "stage", stage, "err", err)
					continue
				}
				if pruned > 0 {
					logger.Info("[Prune] Chunks pruned", "stage", stage, "count", pruned)
				}
			}
		}
	}
}
