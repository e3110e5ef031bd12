// Package config loads and validates the typed environment
// configuration shared by all processes.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chronicler-ai/chronicler/internal/util"
)

// Config is the full environment configuration. Defaults suit a local
// single-instance deployment; production overrides via environment.
type Config struct {
	DatabaseURL string `validate:"required"`
	Debug       bool

	// Oracle transport.
	OracleAdapter     string `validate:"oneof=openai ollama"`
	ChatModel         string `validate:"required"`
	EmbeddingModel    string `validate:"required"`
	ChatURL           string
	ChatKey           string
	EmbeddingURL      string
	EmbeddingKey      string
	OracleTimeout     time.Duration `validate:"gt=0"`
	RequestsPerMinute int

	// Singleton labels, resolved once at startup.
	CanonicalUser      string `validate:"required"`
	CanonicalAssistant string `validate:"required"`

	// External taxonomy for node classification, comma-separated.
	TaxonomyCategories []string

	// Pipeline tuning.
	WindowSize         int           `validate:"gt=0"`
	WindowOverlap      int           `validate:"gte=0,ltfield=WindowSize"`
	WindowFlushAfter   time.Duration `validate:"gt=0"`
	BoundaryWindow     int           `validate:"gt=0"`
	BoundaryFlushAfter time.Duration `validate:"gt=0"`
	ClaimTTL           time.Duration `validate:"gt=0"`
	MaxBatch           int           `validate:"gt=0"`
	IdleBackoff        time.Duration `validate:"gt=0"`
	MergeRetries       int           `validate:"gt=0"`
	SimilarityTopK     int           `validate:"gt=0"`
	SimilarityMinScore float64       `validate:"gt=0,lt=1"`

	// Queue housekeeping.
	PruneRetention time.Duration `validate:"gt=0"`
	PruneInterval  time.Duration `validate:"gt=0"`
	StatusInterval time.Duration `validate:"gt=0"`

	// Chunk archival; disabled when ArchiveBucket is empty.
	ArchiveBucket string
	AWSRegion     string
	AWSEndpoint   string
	AWSAccessKey  string
	AWSSecretKey  string

	// Ingestion broker.
	RabbitMQUser     string
	RabbitMQPassword string
	RabbitMQHost     string
	RabbitMQPort     string
	IngestQueue      string
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL: util.GetEnv("DATABASE_URL"),
		Debug:       util.GetEnvBool("DEBUG", false),

		OracleAdapter:     util.GetEnvString("ORACLE_ADAPTER", "openai"),
		ChatModel:         util.GetEnv("AI_CHAT_MODEL"),
		EmbeddingModel:    util.GetEnv("AI_EMBED_MODEL"),
		ChatURL:           util.GetEnv("AI_CHAT_URL"),
		ChatKey:           util.GetEnv("AI_CHAT_KEY"),
		EmbeddingURL:      util.GetEnv("AI_EMBED_URL"),
		EmbeddingKey:      util.GetEnv("AI_EMBED_KEY"),
		OracleTimeout:     util.GetEnvDuration("ORACLE_TIMEOUT", 120*time.Second),
		RequestsPerMinute: util.GetEnvInt("ORACLE_REQUESTS_PER_MINUTE", 0),

		CanonicalUser:      util.GetEnv("CANONICAL_USER"),
		CanonicalAssistant: util.GetEnv("CANONICAL_ASSISTANT"),

		TaxonomyCategories: splitList(util.GetEnv("TAXONOMY_CATEGORIES")),

		WindowSize:         util.GetEnvInt("RESOLVE_WINDOW_SIZE", 8),
		WindowOverlap:      util.GetEnvInt("RESOLVE_WINDOW_OVERLAP", 3),
		WindowFlushAfter:   util.GetEnvDuration("RESOLVE_FLUSH_AFTER", 10*time.Minute),
		BoundaryWindow:     util.GetEnvInt("BOUNDARY_WINDOW_SIZE", 20),
		BoundaryFlushAfter: util.GetEnvDuration("BOUNDARY_FLUSH_AFTER", 10*time.Minute),
		ClaimTTL:           util.GetEnvDuration("CLAIM_TTL", 5*time.Minute),
		MaxBatch:           util.GetEnvInt("CLAIM_BATCH", 5),
		IdleBackoff:        util.GetEnvDuration("IDLE_BACKOFF", 30*time.Second),
		MergeRetries:       util.GetEnvInt("MERGE_RETRIES", 3),
		SimilarityTopK:     util.GetEnvInt("SIMILARITY_TOP_K", 5),
		SimilarityMinScore: util.GetEnvFloat("SIMILARITY_MIN_SCORE", 0.4),

		PruneRetention: util.GetEnvDuration("PRUNE_RETENTION", 7*24*time.Hour),
		PruneInterval:  util.GetEnvDuration("PRUNE_INTERVAL", time.Hour),
		StatusInterval: util.GetEnvDuration("STATUS_INTERVAL", time.Minute),

		ArchiveBucket: util.GetEnv("ARCHIVE_BUCKET"),
		AWSRegion:     util.GetEnv("AWS_REGION"),
		AWSEndpoint:   util.GetEnv("AWS_ENDPOINT"),
		AWSAccessKey:  util.GetEnv("AWS_ACCESS_KEY"),
		AWSSecretKey:  util.GetEnv("AWS_SECRET_KEY"),

		RabbitMQUser:     util.GetEnv("RABBITMQ_USER"),
		RabbitMQPassword: util.GetEnv("RABBITMQ_PASSWORD"),
		RabbitMQHost:     util.GetEnv("RABBITMQ_HOST"),
		RabbitMQPort:     util.GetEnvString("RABBITMQ_PORT", "5672"),
		IngestQueue:      util.GetEnvString("INGEST_QUEUE", "log_entries"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
