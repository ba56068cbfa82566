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
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/poiesic/lore/core"
)

// Enqueuer submits tasks. *asynq.Client implements it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueResult reports what EnqueueDocuments did with each document.
type EnqueueResult struct {
	Enqueued []core.ID

	// Pending holds documents that already had a task waiting or running.
	Pending []core.ID
}

// Producer enqueues ingestion tasks.
type Producer struct {
	client   Enqueuer
	maxRetry int
	logger   *slog.Logger
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithMaxRetry sets how often asynq retries a failed document.
func WithMaxRetry(n int) ProducerOption {
	return func(p *Producer) {
		if n >= 0 {
			p.maxRetry = n
		}
	}
}

func WithProducerLogger(logger *slog.Logger) ProducerOption {
	return func(p *Producer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewProducer(client Enqueuer, opts ...ProducerOption) (*Producer, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	p := &Producer{
		client:   client,
		maxRetry: DefaultMaxRetry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "producer")
	return p, nil
}

// NewClient connects an asynq client to redis.
func NewClient(redis asynq.RedisConnOpt) *asynq.Client {
	return asynq.NewClient(redis)
}

// EnqueueDocuments submits one task per document. Documents that already
// have a retained task are reported as pending, not as errors. Other
// failures are joined and returned alongside what was enqueued so far.
func (p *Producer) EnqueueDocuments(ctx context.Context, ids []core.ID) (*EnqueueResult, error) {
	result := &EnqueueResult{}
	var errs []error
	for _, id := range ids {
		task, err := NewIngestTask(id, asynq.MaxRetry(p.maxRetry))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		info, err := p.client.EnqueueContext(ctx, task)
		switch {
		case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
			p.logger.Debug("document already queued", "document", id)
			result.Pending = append(result.Pending, id)
		case err != nil:
			errs = append(errs, fmt.Errorf("enqueue %s: %w", id, err))
		default:
			p.logger.Debug("enqueued document", "document", id, "task", info.ID, "queue", info.Queue)
			result.Enqueued = append(result.Enqueued, id)
		}
	}
	p.logger.Info("enqueued ingestion tasks", "enqueued", len(result.Enqueued), "pending", len(result.Pending))
	return result, errors.Join(errs...)
}
