// Package config provides configuration loading for recalld.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration for the recalld daemon.
type Config struct {
	// DataDir is the root directory for per-tenant state.
	// Default: ~/.local/share/recalld
	DataDir string `koanf:"data_dir"`

	Logging      LoggingConfig      `koanf:"logging"`
	Embedding    EmbeddingConfig    `koanf:"embedding"`
	Chunker      ChunkerConfig      `koanf:"chunker"`
	Facts        FactsConfig        `koanf:"facts"`
	Conversation ConversationConfig `koanf:"conversation"`
	Ingest       IngestConfig       `koanf:"ingest"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error. Default: info.
	Level string `koanf:"level"`
	// Format is the encoder: json or console. Default: json.
	Format string `koanf:"format"`
}

// EmbeddingConfig configures the remote embedding service client.
type EmbeddingConfig struct {
	// BaseURL is the embedding service endpoint. Default: http://localhost:11434.
	BaseURL string `koanf:"base_url"`
	// Model is the embedding model name. Default: nomic-embed-text.
	Model string `koanf:"model"`
	// Dimension is the fixed embedding dimension D. Default: 768.
	Dimension int `koanf:"dimension"`
	// Timeout bounds each embedding HTTP round trip. Default: 30s.
	Timeout Duration `koanf:"timeout"`
}

// ChunkerConfig configures semantic chunking.
type ChunkerConfig struct {
	// SimilarityThreshold is the adjacent-paragraph cosine similarity below
	// which a chunk boundary is placed. Default: 0.85.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	// WindowSize is the fixed-size fallback window in characters. Default: 1000.
	WindowSize int `koanf:"window_size"`
	// WindowOverlap is the fallback window overlap in characters. Default: 100.
	WindowOverlap int `koanf:"window_overlap"`
}

// FactsConfig configures the user facts store.
type FactsConfig struct {
	// DedupThreshold is the cosine similarity above which two facts in the
	// same category are considered the same fact. Default: 0.95.
	DedupThreshold float64 `koanf:"dedup_threshold"`
	// RebuildEvery is the number of write operations between index
	// compactions. Default: 10.
	RebuildEvery int `koanf:"rebuild_every"`
}

// ConversationConfig configures conversation history retrieval.
type ConversationConfig struct {
	// HistoryDays is the default retrieval window. Default: 7.
	HistoryDays int `koanf:"history_days"`
	// HistoryLimit caps the number of turns rendered. Default: 10.
	HistoryLimit int `koanf:"history_limit"`
}

// IngestConfig configures the plain-text inbox watcher.
type IngestConfig struct {
	// InboxDir is the watched directory. Empty disables the watcher.
	InboxDir string `koanf:"inbox_dir"`
	// Extensions lists accepted file extensions. Default: [".txt", ".md"].
	Extensions []string `koanf:"extensions"`
}

// TelemetryConfig configures OpenTelemetry export. Export is off by
// default; when enabled, traces and metrics go to an OTLP collector.
type TelemetryConfig struct {
	// Enabled turns telemetry export on. Default: false.
	Enabled bool `koanf:"enabled"`
	// Endpoint is the OTLP collector address, host:port. Default: localhost:4317.
	Endpoint string `koanf:"endpoint"`
	// Protocol is the OTLP transport: grpc or http/protobuf. Default: grpc.
	Protocol string `koanf:"protocol"`
	// Insecure disables TLS on the exporter connection. Default: true.
	Insecure bool `koanf:"insecure"`
	// SampleRate is the trace sampling ratio in [0, 1]. Default: 1.0.
	SampleRate float64 `koanf:"sample_rate"`
	// MetricInterval is the periodic metric export interval. Default: 30s.
	MetricInterval Duration `koanf:"metric_interval"`
	// ShutdownTimeout bounds the final flush on shutdown. Default: 5s.
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.DataDir = filepath.Join(home, ".local", "share", "recalld")
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "http://localhost:11434"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "nomic-embed-text"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 768
	}
	if c.Embedding.Timeout == 0 {
		c.Embedding.Timeout = Duration(30 * time.Second)
	}
	if c.Chunker.SimilarityThreshold == 0 {
		c.Chunker.SimilarityThreshold = 0.85
	}
	if c.Chunker.WindowSize == 0 {
		c.Chunker.WindowSize = 1000
	}
	if c.Chunker.WindowOverlap == 0 {
		c.Chunker.WindowOverlap = 100
	}
	if c.Facts.DedupThreshold == 0 {
		c.Facts.DedupThreshold = 0.95
	}
	if c.Facts.RebuildEvery == 0 {
		c.Facts.RebuildEvery = 10
	}
	if c.Conversation.HistoryDays == 0 {
		c.Conversation.HistoryDays = 7
	}
	if c.Conversation.HistoryLimit == 0 {
		c.Conversation.HistoryLimit = 10
	}
	if len(c.Ingest.Extensions) == 0 {
		c.Ingest.Extensions = []string{".txt", ".md"}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Chunker.SimilarityThreshold <= 0 || c.Chunker.SimilarityThreshold > 1 {
		return fmt.Errorf("chunker.similarity_threshold must be in (0, 1], got %v", c.Chunker.SimilarityThreshold)
	}
	if c.Chunker.WindowOverlap >= c.Chunker.WindowSize {
		return fmt.Errorf("chunker.window_overlap %d must be smaller than window_size %d",
			c.Chunker.WindowOverlap, c.Chunker.WindowSize)
	}
	if c.Facts.DedupThreshold <= 0 || c.Facts.DedupThreshold > 1 {
		return fmt.Errorf("facts.dedup_threshold must be in (0, 1], got %v", c.Facts.DedupThreshold)
	}
	if c.Facts.RebuildEvery < 1 {
		return fmt.Errorf("facts.rebuild_every must be at least 1, got %d", c.Facts.RebuildEvery)
	}
	if c.Conversation.HistoryDays < 1 {
		return fmt.Errorf("conversation.history_days must be at least 1, got %d", c.Conversation.HistoryDays)
	}
	return nil
}
