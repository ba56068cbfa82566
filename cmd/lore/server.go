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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/lore"
	"github.com/poiesic/lore/api"
	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/queue"
	"github.com/poiesic/lore/storage/sqlite"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve the HTTP API",
		Action: serveAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides server.addr)",
			},
		},
	}
}

func serveAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	kb, err := openKnowledgeBase(ctx, c)
	if err != nil {
		return err
	}
	defer kb.Close()
	cfg := kb.Config()

	if n, err := kb.Queue().Resume(ctx); err != nil {
		slog.Error("failed to resume unfinished tasks", "err", err)
	} else if n > 0 {
		slog.Info("resumed unfinished tasks", "tasks", n)
	}

	handler, err := api.NewServer(api.Deps{
		Documents: kb.Documents(),
		Chunks:    kb.Chunks(),
		Tasks:     kb.Queue(),
		Querier:   kb.Retriever(),
	}, api.WithMaxConcurrent(cfg.Ingestion.MaxConcurrent))
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:   "worker",
		Usage:  "Process ingestion tasks from the redis-backed queue",
		Action: workerAction,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Documents processed at once (overrides queue.concurrency)",
			},
		},
	}
}

func workerAction(c *cli.Context) error {
	kb, err := openKnowledgeBase(c.Context, c)
	if err != nil {
		return err
	}
	defer kb.Close()
	cfg := kb.Config()

	processor, err := queue.NewProcessor(kb.Ingestor())
	if err != nil {
		return err
	}

	concurrency := cfg.Queue.Concurrency
	if c.IsSet("concurrency") {
		concurrency = c.Int("concurrency")
	}
	redis := queue.RedisOpt(cfg.Queue.RedisAddr, cfg.Queue.RedisPassword, cfg.Queue.RedisDB)
	server := queue.NewServer(redis, concurrency, slog.Default())

	slog.Info("starting worker", "redis", cfg.Queue.RedisAddr, "concurrency", concurrency, "queue", queue.DefaultQueue)
	// Run blocks until SIGINT or SIGTERM.
	if err := server.Run(queue.NewServeMux(processor)); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}
	return nil
}

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:      "enqueue",
		Usage:     "Queue documents for the worker, by default every pending one in the collection",
		ArgsUsage: "[document-id...]",
		Action:    enqueueAction,
		Flags: []cli.Flag{
			collectionFlag(),
			&cli.BoolFlag{
				Name:  "retry-errors",
				Usage: "Also queue documents whose last ingestion failed",
			},
		},
	}
}

// enqueueAction reads only the relational store so it can run while a
// worker holds the vector store open.
func enqueueAction(c *cli.Context) error {
	ctx := c.Context
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ids := toIDs(c.Args().Slice())
	if len(ids) == 0 {
		if ids, err = pendingFromDatabase(ctx, cfg.DatabasePath(), c.String("collection"), c.Bool("retry-errors")); err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		fmt.Fprintln(c.App.Writer, "Nothing to enqueue")
		return nil
	}

	client := queue.NewClient(queue.RedisOpt(cfg.Queue.RedisAddr, cfg.Queue.RedisPassword, cfg.Queue.RedisDB))
	defer client.Close()

	producer, err := queue.NewProducer(client, queue.WithMaxRetry(cfg.Queue.MaxRetry))
	if err != nil {
		return err
	}
	result, err := producer.EnqueueDocuments(ctx, ids)
	fmt.Fprintf(c.App.Writer, "Enqueued %d documents, %d already queued\n", len(result.Enqueued), len(result.Pending))
	return err
}

func pendingFromDatabase(ctx context.Context, path, collectionID string, retryErrors bool) ([]core.ID, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	docs, _ := sqlite.NewRepositories(db)

	ids, err := lore.ListPending(ctx, docs, collectionID, retryErrors)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return ids, nil
}
