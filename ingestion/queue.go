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
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/storage"
)

const defaultPollInterval = 500 * time.Millisecond

// Queue runs ingestion tasks in the background and persists their progress
// so callers can poll them and a restarted process can resume them.
type Queue struct {
	scheduler    *Scheduler
	tasks        storage.TaskRepository
	pollInterval time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	running map[core.ID]chan struct{}
	closed  bool
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithPollInterval sets how often Wait re-reads tasks run by another process.
func WithPollInterval(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func NewQueue(scheduler *Scheduler, tasks storage.TaskRepository, opts ...QueueOption) (*Queue, error) {
	if scheduler == nil {
		return nil, ErrIngestorRequired
	}
	if tasks == nil {
		return nil, ErrTaskRepositoryRequired
	}
	q := &Queue{
		scheduler:    scheduler,
		tasks:        tasks,
		pollInterval: defaultPollInterval,
		logger:       slog.Default(),
		running:      make(map[core.ID]chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("component", "queue")
	return q, nil
}

// Enqueue persists a task for documentIDs and starts it in the background.
// The returned task is a snapshot; poll Task or Wait for progress.
func (q *Queue) Enqueue(ctx context.Context, documentIDs []core.ID, maxConcurrent int) (*core.Task, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	task := &core.Task{
		Id:            core.NewID(),
		DocumentIds:   slices.Clone(documentIDs),
		MaxConcurrent: maxConcurrent,
		Status:        core.TaskStatusQueued,
		Failures:      make(map[core.ID]string),
		CreatedAt:     time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	if err := q.tasks.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}
	snapshot := cloneTask(task)
	q.startLocked(task)
	return snapshot, nil
}

// Task returns the current state of a task.
func (q *Queue) Task(ctx context.Context, id core.ID) (*core.Task, error) {
	return q.tasks.GetTask(ctx, id)
}

// Wait blocks until the task is done or ctx ends. Tasks run by another
// process are polled.
func (q *Queue) Wait(ctx context.Context, id core.ID) (*core.Task, error) {
	q.mu.Lock()
	done, ok := q.running[id]
	q.mu.Unlock()

	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return q.tasks.GetTask(ctx, id)
	}

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()
	for {
		task, err := q.tasks.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Status == core.TaskStatusDone {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Interrupter resets a document a dead process left in processing.
// Ingestor implements it.
type Interrupter interface {
	Interrupt(ctx context.Context, id core.ID) (bool, error)
}

// Resume restarts tasks a previous process left queued or running.
// Progress counters restart from zero. When the ingester is an
// Interrupter, the tasks' documents stuck in processing are moved to error
// first so the resumed run can ingest them again; call Resume before
// enqueueing new work. Returns the number of tasks resumed.
func (q *Queue) Resume(ctx context.Context) (int, error) {
	orphaned, err := q.tasks.ListTasks(ctx, core.TaskStatusQueued, core.TaskStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("list unfinished tasks: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, ErrQueueClosed
	}

	resumed := 0
	for _, task := range orphaned {
		if _, ok := q.running[task.Id]; ok {
			continue
		}
		q.interruptLocked(ctx, task)
		task.Status = core.TaskStatusQueued
		task.Succeeded, task.Failed = 0, 0
		task.Failures = make(map[core.ID]string)
		if err := q.tasks.SaveTask(ctx, task); err != nil {
			return resumed, fmt.Errorf("save task %s: %w", task.Id, err)
		}
		q.logger.Info("resuming task", "task", task.Id, "documents", len(task.DocumentIds))
		q.startLocked(task)
		resumed++
	}
	return resumed, nil
}

func (q *Queue) interruptLocked(ctx context.Context, task *core.Task) {
	in, ok := q.scheduler.ingester.(Interrupter)
	if !ok {
		return
	}
	for _, id := range task.DocumentIds {
		reset, err := in.Interrupt(ctx, id)
		if err != nil {
			// the resumed run reports the document as failed
			q.logger.Warn("cannot reset interrupted document", "task", task.Id, "document", id, "err", err)
			continue
		}
		if reset {
			q.logger.Info("reset interrupted document", "task", task.Id, "document", id)
		}
	}
}

// Close stops accepting tasks and waits for running ones to finish.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

func (q *Queue) startLocked(task *core.Task) {
	done := make(chan struct{})
	q.running[task.Id] = done
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer func() {
			q.mu.Lock()
			delete(q.running, task.Id)
			q.mu.Unlock()
			close(done)
		}()
		q.run(task)
	}()
}

func (q *Queue) run(task *core.Task) {
	ctx := context.Background()
	logger := q.logger.With("task", task.Id)

	var mu sync.Mutex
	save := func() {
		mu.Lock()
		defer mu.Unlock()
		if err := q.tasks.SaveTask(ctx, task); err != nil {
			logger.Error("failed to save task", "err", err)
		}
	}

	mu.Lock()
	task.Status = core.TaskStatusRunning
	task.StartedAt = time.Now().UTC()
	mu.Unlock()
	save()

	summary := q.scheduler.Run(ctx, task.DocumentIds, task.MaxConcurrent, func(id core.ID, _ *Outcome, err error) {
		mu.Lock()
		if err != nil {
			task.Failed++
			task.Failures[id] = err.Error()
		} else {
			task.Succeeded++
		}
		mu.Unlock()
		save()
	})

	mu.Lock()
	task.Status = core.TaskStatusDone
	task.Succeeded = summary.Succeeded
	task.Failed = summary.Failed
	task.Failures = summary.Failures
	task.FinishedAt = time.Now().UTC()
	mu.Unlock()
	save()

	logger.Info("task finished", "succeeded", summary.Succeeded, "failed", summary.Failed)
}

func cloneTask(t *core.Task) *core.Task {
	c := *t
	c.DocumentIds = slices.Clone(t.DocumentIds)
	c.Failures = maps.Clone(t.Failures)
	return &c
}
