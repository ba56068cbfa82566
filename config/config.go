// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads lore's settings from a YAML file, an optional .env
// file and LORE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/lore/ai"
	"github.com/poiesic/lore/chunker"
	"github.com/poiesic/lore/embedding"
	"github.com/poiesic/lore/ingestion"
	"github.com/poiesic/lore/retrieval"
)

// EnvPrefix starts every environment variable the loader reads.
const EnvPrefix = "LORE_"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the application configuration
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	AI        AIConfig        `yaml:"ai"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Cache     CacheConfig     `yaml:"cache"`
	Queue     QueueConfig     `yaml:"queue"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// AIConfig selects and configures the embedding and generation provider
type AIConfig struct {
	Provider          string  `yaml:"provider"` // "openai" | "gemini" | "mock"
	EmbeddingHost     string  `yaml:"embedding_host,omitempty"`
	GenerationHost    string  `yaml:"generation_host,omitempty"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	GenerationModel   string  `yaml:"generation_model"`
	APIKey            string  `yaml:"api_key,omitempty"`
	Dimensions        int     `yaml:"dimensions,omitempty"`
	Temperature       float64 `yaml:"temperature"`
	RequestsPerMinute int     `yaml:"requests_per_minute,omitempty"`
}

// IngestionConfig holds chunking and scheduling settings
type IngestionConfig struct {
	ChunkSize         int           `yaml:"chunk_size"`
	ChunkOverlap      int           `yaml:"chunk_overlap"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	Stagger           time.Duration `yaml:"stagger,omitempty"`
	MaxExtractedBytes int           `yaml:"max_extracted_bytes"`
	SnippetRunes      int           `yaml:"snippet_runes"`
	ExtractionTTL     time.Duration `yaml:"extraction_ttl"`
	MaxSourceBytes    int64         `yaml:"max_source_bytes"`
}

// EmbeddingConfig holds embedding batch settings
type EmbeddingConfig struct {
	BatchSize     int     `yaml:"batch_size"`
	Parallelism   int     `yaml:"parallelism"`
	FailurePolicy string  `yaml:"failure_policy"` // "propagate" | "fallback"
	MaxAttempts   int     `yaml:"max_attempts"`
	RateLimit     float64 `yaml:"rate_limit,omitempty"` // batches per second, 0 = unlimited
	RateBurst     int     `yaml:"rate_burst,omitempty"`
}

// RetrievalConfig holds query defaults
type RetrievalConfig struct {
	MinConfidence float64       `yaml:"min_confidence"`
	MaxSources    int           `yaml:"max_sources"`
	Oversample    int           `yaml:"oversample"`
	QueryCacheTTL time.Duration `yaml:"query_cache_ttl"`
}

// CacheConfig selects the cache shared by ingestion and retrieval
type CacheConfig struct {
	Backend       string `yaml:"backend"` // "none" | "memory" | "redis"
	MaxBytes      int64  `yaml:"max_bytes,omitempty"`
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
}

// QueueConfig configures distributed ingestion over asynq
type QueueConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
	Concurrency   int    `yaml:"concurrency"`
	MaxRetry      int    `yaml:"max_retry"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `yaml:"format"` // "text" | "json"
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		DataDir: "lore-data",
		AI: AIConfig{
			Provider:        aiDefaults.Provider,
			EmbeddingHost:   aiDefaults.EmbeddingHost,
			GenerationHost:  aiDefaults.GenerationHost,
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			GenerationModel: aiDefaults.GenerationModel,
			Temperature:     aiDefaults.Temperature,
		},
		Ingestion: IngestionConfig{
			ChunkSize:         chunker.DefaultMaxSize,
			ChunkOverlap:      chunker.DefaultOverlap,
			MaxConcurrent:     ingestion.DefaultMaxConcurrent,
			MaxExtractedBytes: ingestion.DefaultMaxExtractedBytes,
			SnippetRunes:      ingestion.DefaultSnippetRunes,
			ExtractionTTL:     ingestion.DefaultCacheTTL,
			MaxSourceBytes:    64 << 20,
		},
		Embedding: EmbeddingConfig{
			BatchSize:     embedding.DefaultBatchSize,
			Parallelism:   embedding.DefaultParallelism,
			FailurePolicy: embedding.PolicyPropagate.String(),
			MaxAttempts:   3,
		},
		Retrieval: RetrievalConfig{
			MinConfidence: retrieval.DefaultMinConfidence,
			MaxSources:    retrieval.DefaultMaxSources,
			Oversample:    retrieval.DefaultOversample,
			QueryCacheTTL: retrieval.DefaultCacheTTL,
		},
		Cache: CacheConfig{
			Backend: "memory",
		},
		Queue: QueueConfig{
			RedisAddr:   "localhost:6379",
			Concurrency: ingestion.DefaultMaxConcurrent,
			MaxRetry:    3,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then variables from envFile (if it exists), then the
// process environment.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			// Existing process variables win over the file.
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("error loading %s: %w", envFile, err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from LORE_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("DATA_DIR", &c.DataDir)

	e.str("AI_PROVIDER", &c.AI.Provider)
	e.str("AI_HOST", &c.AI.EmbeddingHost)
	e.str("AI_HOST", &c.AI.GenerationHost)
	e.str("AI_EMBEDDING_HOST", &c.AI.EmbeddingHost)
	e.str("AI_GENERATION_HOST", &c.AI.GenerationHost)
	e.str("AI_EMBEDDING_MODEL", &c.AI.EmbeddingModel)
	e.str("AI_GENERATION_MODEL", &c.AI.GenerationModel)
	e.str("AI_API_KEY", &c.AI.APIKey)
	e.integer("AI_DIMENSIONS", &c.AI.Dimensions)
	e.number("AI_TEMPERATURE", &c.AI.Temperature)
	e.integer("AI_REQUESTS_PER_MINUTE", &c.AI.RequestsPerMinute)

	e.integer("CHUNK_SIZE", &c.Ingestion.ChunkSize)
	e.integer("CHUNK_OVERLAP", &c.Ingestion.ChunkOverlap)
	e.integer("MAX_CONCURRENT", &c.Ingestion.MaxConcurrent)
	e.duration("STAGGER", &c.Ingestion.Stagger)
	e.integer("MAX_EXTRACTED_BYTES", &c.Ingestion.MaxExtractedBytes)
	e.duration("EXTRACTION_TTL", &c.Ingestion.ExtractionTTL)

	e.integer("EMBEDDING_BATCH_SIZE", &c.Embedding.BatchSize)
	e.integer("EMBEDDING_PARALLELISM", &c.Embedding.Parallelism)
	e.str("EMBEDDING_FAILURE_POLICY", &c.Embedding.FailurePolicy)
	e.integer("EMBEDDING_MAX_ATTEMPTS", &c.Embedding.MaxAttempts)
	e.number("EMBEDDING_RATE_LIMIT", &c.Embedding.RateLimit)

	e.number("MIN_CONFIDENCE", &c.Retrieval.MinConfidence)
	e.integer("MAX_SOURCES", &c.Retrieval.MaxSources)

	e.str("CACHE_BACKEND", &c.Cache.Backend)
	e.str("CACHE_REDIS_ADDR", &c.Cache.RedisAddr)
	e.str("CACHE_REDIS_PASSWORD", &c.Cache.RedisPassword)

	e.str("QUEUE_REDIS_ADDR", &c.Queue.RedisAddr)
	e.str("QUEUE_REDIS_PASSWORD", &c.Queue.RedisPassword)
	e.integer("QUEUE_CONCURRENCY", &c.Queue.Concurrency)

	e.str("SERVER_ADDR", &c.Server.Addr)

	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(e.errs...)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(strings.TrimSpace(c.DataDir) != "", "data_dir is required")
	check(c.Ingestion.ChunkSize > 0, "ingestion.chunk_size must be positive, got %d", c.Ingestion.ChunkSize)
	check(c.Ingestion.ChunkOverlap >= 0 && c.Ingestion.ChunkOverlap < c.Ingestion.ChunkSize,
		"ingestion.chunk_overlap must be in [0, chunk_size), got %d", c.Ingestion.ChunkOverlap)
	check(c.Ingestion.MaxConcurrent > 0, "ingestion.max_concurrent must be positive, got %d", c.Ingestion.MaxConcurrent)
	check(c.Ingestion.Stagger >= 0, "ingestion.stagger must not be negative")
	check(c.Ingestion.MaxSourceBytes > 0, "ingestion.max_source_bytes must be positive")
	check(c.Embedding.BatchSize > 0, "embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	check(c.Embedding.Parallelism > 0, "embedding.parallelism must be positive, got %d", c.Embedding.Parallelism)
	check(c.Embedding.MaxAttempts > 0, "embedding.max_attempts must be positive, got %d", c.Embedding.MaxAttempts)
	check(c.Embedding.RateLimit >= 0, "embedding.rate_limit must not be negative")
	if _, err := embedding.ParsePolicy(c.Embedding.FailurePolicy); err != nil {
		errs = append(errs, err)
	}
	check(c.Retrieval.MinConfidence > 0 && c.Retrieval.MinConfidence <= 1,
		"retrieval.min_confidence must be in (0, 1], got %v", c.Retrieval.MinConfidence)
	check(c.Retrieval.MaxSources > 0, "retrieval.max_sources must be positive, got %d", c.Retrieval.MaxSources)
	check(c.Retrieval.Oversample > 0, "retrieval.oversample must be positive, got %d", c.Retrieval.Oversample)

	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		check(c.Cache.RedisAddr != "", "cache.redis_addr is required for the redis backend")
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}

	check(c.Queue.Concurrency > 0, "queue.concurrency must be positive, got %d", c.Queue.Concurrency)

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	if err := c.ProviderConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ProviderConfig converts the ai section into a provider configuration.
func (c *Config) ProviderConfig() *ai.Config {
	return &ai.Config{
		Provider:          c.AI.Provider,
		EmbeddingHost:     c.AI.EmbeddingHost,
		GenerationHost:    c.AI.GenerationHost,
		EmbeddingModel:    c.AI.EmbeddingModel,
		GenerationModel:   c.AI.GenerationModel,
		APIKey:            c.AI.APIKey,
		Dimensions:        c.AI.Dimensions,
		Temperature:       c.AI.Temperature,
		RequestsPerMinute: c.AI.RequestsPerMinute,
	}
}

// DatabasePath is the relational store file inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "lore.db")
}

// VectorsPath is the vector store directory inside DataDir.
func (c *Config) VectorsPath() string {
	return filepath.Join(c.DataDir, "vectors")
}

// envReader collects parse errors so every bad variable is reported at once.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) integer(name string, dst *int) {
	if v, ok := e.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) number(name string, dst *float64) {
	if v, ok := e.get(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = d
	}
}
