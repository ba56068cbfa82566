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

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/lore/core"
)

// DefaultMaxConcurrent is used when RunAll is given a non-positive limit.
const DefaultMaxConcurrent = 3

// DocumentIngester ingests one document. Ingestor implements it.
type DocumentIngester interface {
	IngestOne(ctx context.Context, id core.ID) (*Outcome, error)
}

// Summary tallies a RunAll call.
type Summary struct {
	Succeeded int
	Failed    int
	Failures  map[core.ID]string
	Elapsed   time.Duration
}

// ProgressFunc is called after each document finishes. err is nil on success.
type ProgressFunc func(id core.ID, outcome *Outcome, err error)

// Scheduler ingests many documents with bounded concurrency.
type Scheduler struct {
	ingester DocumentIngester
	stagger  time.Duration
	logger   *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithStagger delays each of the first maxConcurrent starts by d after the
// previous one, spreading the initial burst of provider calls.
func WithStagger(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.stagger = d
	}
}

func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewScheduler(ingester DocumentIngester, opts ...SchedulerOption) (*Scheduler, error) {
	if ingester == nil {
		return nil, ErrIngestorRequired
	}
	s := &Scheduler{
		ingester: ingester,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	return s, nil
}

// RunAll ingests every document with at most maxConcurrent in flight. A
// failed document never stops the others; each failure is logged and
// tallied. Documents not started before ctx ends count as failed.
func (s *Scheduler) RunAll(ctx context.Context, ids []core.ID, maxConcurrent int) Summary {
	return s.Run(ctx, ids, maxConcurrent, nil)
}

// Run is RunAll reporting each finished document to progress.
func (s *Scheduler) Run(ctx context.Context, ids []core.ID, maxConcurrent int, progress ProgressFunc) Summary {
	start := time.Now()
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		summary = Summary{Failures: make(map[core.ID]string)}
	)
	record := func(id core.ID, outcome *Outcome, err error) {
		mu.Lock()
		if err != nil {
			summary.Failed++
			summary.Failures[id] = err.Error()
		} else {
			summary.Succeeded++
		}
		mu.Unlock()

		if err != nil {
			s.logger.Error("document ingestion failed", "document", id, "err", err)
		}
		if progress != nil {
			progress(id, outcome, err)
		}
	}

	pool, err := ants.NewPool(maxConcurrent)
	if err != nil {
		for _, id := range ids {
			record(id, nil, fmt.Errorf("create worker pool: %w", err))
		}
		return summary
	}
	defer pool.Release()

	s.logger.Info("starting ingestion run", "documents", len(ids), "max_concurrent", maxConcurrent)

	for n, id := range ids {
		if n > 0 && n < maxConcurrent && s.stagger > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.stagger):
			}
		}
		if err := ctx.Err(); err != nil {
			record(id, nil, err)
			continue
		}

		wg.Add(1)
		// Submit blocks while every worker is busy.
		err := pool.Submit(func() {
			defer wg.Done()
			outcome, err := s.ingest(ctx, id)
			record(id, outcome, err)
		})
		if err != nil {
			wg.Done()
			record(id, nil, fmt.Errorf("submit: %w", err))
		}
	}
	wg.Wait()

	summary.Elapsed = time.Since(start)
	s.logger.Info("ingestion run finished",
		"succeeded", summary.Succeeded, "failed", summary.Failed, "elapsed", summary.Elapsed)
	return summary
}

// ingest shields the pool from panics in ingesters that do not recover.
func (s *Scheduler) ingest(ctx context.Context, id core.ID) (outcome *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return s.ingester.IngestOne(ctx, id)
}
