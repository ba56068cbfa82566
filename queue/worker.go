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

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/ingestion"
	"github.com/poiesic/lore/storage"
)

// IngestResult is written as the asynq task result after a successful run.
type IngestResult struct {
	DocumentID    core.ID `json:"document_id"`
	ChunksCreated int     `json:"chunks_created"`
	MockEmbedding bool    `json:"mock_embedding,omitempty"`
	Warning       string  `json:"warning,omitempty"`
}

// Processor handles ingestion tasks by running them through an ingester.
type Processor struct {
	ingester ingestion.DocumentIngester
	logger   *slog.Logger
}

var _ asynq.Handler = (*Processor)(nil)

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewProcessor(ingester ingestion.DocumentIngester, opts ...ProcessorOption) (*Processor, error) {
	if ingester == nil {
		return nil, ErrIngesterRequired
	}
	p := &Processor{
		ingester: ingester,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "worker")
	return p, nil
}

// ProcessTask ingests the task's document. Errors that another attempt
// cannot fix are wrapped with asynq.SkipRetry; everything else is left
// for asynq to retry, which the error -> processing transition allows.
func (p *Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := ParseIngestPayload(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	logger := p.logger.With("document", payload.DocumentID)
	if retried, ok := asynq.GetRetryCount(ctx); ok && retried > 0 {
		logger = logger.With("retry", retried)
	}

	outcome, err := p.ingester.IngestOne(ctx, payload.DocumentID)
	if err != nil {
		if permanent(err) {
			logger.Warn("ingestion will not be retried", "err", err)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	logger.Info("document ingested", "chunks", outcome.ChunksCreated, "elapsed", outcome.Elapsed)
	if w := t.ResultWriter(); w != nil {
		result, err := json.Marshal(IngestResult{
			DocumentID:    payload.DocumentID,
			ChunksCreated: outcome.ChunksCreated,
			MockEmbedding: outcome.MockEmbedding,
			Warning:       outcome.Warning,
		})
		if err == nil {
			_, err = w.Write(result)
		}
		if err != nil {
			logger.Warn("failed to write task result", "err", err)
		}
	}
	return nil
}

func permanent(err error) bool {
	return errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, core.ErrInvalidStateTransition) ||
		errors.Is(err, ingestion.ErrPanic)
}

// NewServeMux routes ingestion tasks to p.
func NewServeMux(p *Processor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeIngestDocument, p)
	return mux
}

// RedisOpt builds the asynq connection options.
func RedisOpt(addr, password string, db int) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
}

// NewServer creates a worker server that processes the ingestion queue
// with at most concurrency documents in flight.
func NewServer(redis asynq.RedisConnOpt, concurrency int, logger *slog.Logger) *asynq.Server {
	if concurrency <= 0 {
		concurrency = ingestion.DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "asynq")
	return asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{DefaultQueue: 1},
		Logger:      &asynqLoggerAdapter{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("task failed", "type", task.Type(), "err", err)
		}),
	})
}

// asynqLoggerAdapter adapts slog.Logger to the asynq.Logger interface.
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

var _ asynq.Logger = (*asynqLoggerAdapter)(nil)

func (l *asynqLoggerAdapter) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLoggerAdapter) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLoggerAdapter) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLoggerAdapter) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }

// Fatal must not return.
func (l *asynqLoggerAdapter) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
