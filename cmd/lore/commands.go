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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/lore"
	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/ingestion"
	"github.com/poiesic/lore/retrieval"
)

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Register files or URLs as pending documents",
		ArgsUsage: "<path-or-url>...",
		Action:    addAction,
		Flags: []cli.Flag{
			collectionFlag(),
			&cli.StringFlag{
				Name:  "name",
				Usage: "Source name shown in citations (single document only)",
			},
			&cli.BoolFlag{
				Name:  "ingest",
				Usage: "Ingest the new documents right away",
			},
		},
	}
}

func addAction(c *cli.Context) error {
	refs := c.Args().Slice()
	if len(refs) == 0 {
		return fmt.Errorf("at least one path or URL is required")
	}
	if c.String("name") != "" && len(refs) > 1 {
		return fmt.Errorf("--name can only be used with a single document")
	}

	ctx := c.Context
	kb, err := openKnowledgeBase(ctx, c)
	if err != nil {
		return err
	}
	defer kb.Close()

	ids := make([]core.ID, 0, len(refs))
	for _, ref := range refs {
		doc, err := kb.AddDocument(ctx, &core.Document{
			CollectionId: c.String("collection"),
			Name:         c.String("name"),
			StorageRef:   ref,
		})
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", ref, err)
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", doc.Id, ref)
		ids = append(ids, doc.Id)
	}

	if !c.Bool("ingest") {
		return nil
	}
	return runIngestion(ctx, c, kb, ids, 0)
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Ingest documents, by default every pending one in the collection",
		ArgsUsage: "[document-id...]",
		Action:    ingestAction,
		Flags: []cli.Flag{
			collectionFlag(),
			&cli.BoolFlag{
				Name:  "retry-errors",
				Usage: "Also retry documents whose last ingestion failed",
			},
			&cli.IntFlag{
				Name:  "max-concurrent",
				Usage: "Documents processed at once (0 uses the configured limit)",
			},
		},
	}
}

func ingestAction(c *cli.Context) error {
	ctx := c.Context
	kb, err := openKnowledgeBase(ctx, c)
	if err != nil {
		return err
	}
	defer kb.Close()

	ids := toIDs(c.Args().Slice())
	if len(ids) == 0 {
		if ids, err = kb.PendingDocuments(ctx, c.String("collection"), c.Bool("retry-errors")); err != nil {
			return fmt.Errorf("failed to list documents: %w", err)
		}
	}
	if len(ids) == 0 {
		fmt.Fprintln(c.App.Writer, "Nothing to ingest")
		return nil
	}
	return runIngestion(ctx, c, kb, ids, c.Int("max-concurrent"))
}

func runIngestion(ctx context.Context, c *cli.Context, kb *lore.KnowledgeBase, ids []core.ID, maxConcurrent int) error {
	out := c.App.Writer
	total := len(ids)
	done := 0
	var mu sync.Mutex
	summary := kb.IngestAllWithProgress(ctx, ids, maxConcurrent, func(id core.ID, outcome *ingestion.Outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		done++
		switch {
		case err != nil:
			fmt.Fprintf(out, "[%d/%d] %s failed: %v\n", done, total, id, err)
		case outcome.Warning != "":
			fmt.Fprintf(out, "[%d/%d] %s: %d chunks (%s)\n", done, total, id, outcome.ChunksCreated, outcome.Warning)
		default:
			fmt.Fprintf(out, "[%d/%d] %s: %d chunks\n", done, total, id, outcome.ChunksCreated)
		}
	})

	fmt.Fprintf(out, "Ingested %d of %d documents in %s\n", summary.Succeeded, total, summary.Elapsed.Round(time.Millisecond))
	if summary.Failed > 0 {
		return cli.Exit(fmt.Sprintf("%d documents failed", summary.Failed), 1)
	}
	return nil
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Ask a question against a collection",
		ArgsUsage: "<question>",
		Action:    queryAction,
		Flags: []cli.Flag{
			collectionFlag(),
			&cli.Float64Flag{
				Name:  "min-confidence",
				Usage: "Minimum source score (0 uses the configured default, -1 keeps every source)",
			},
			&cli.IntFlag{
				Name:  "max-sources",
				Usage: "Maximum number of cited sources (0 uses the configured default)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log every stage of the query",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the result as JSON",
			},
		},
	}
}

func queryAction(c *cli.Context) error {
	text := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("a question is required")
	}

	ctx := c.Context
	kb, err := openKnowledgeBase(ctx, c)
	if err != nil {
		return err
	}
	defer kb.Close()

	opts := retrieval.QueryOptions{
		MinConfidence: c.Float64("min-confidence"),
		MaxSources:    c.Int("max-sources"),
	}
	var monitor retrieval.QueryMonitor
	if c.Bool("verbose") {
		monitor = &retrieval.LogMonitor{
			Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})),
		}
	}

	result, err := kb.QueryWithMonitor(ctx, text, c.String("collection"), opts, monitor)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(c.App.Writer, result)
	return nil
}

func printResult(w io.Writer, result *core.QueryResult) {
	fmt.Fprintln(w, result.Content)
	if len(result.Citations) == 0 {
		return
	}
	fmt.Fprintf(w, "\nSources (confidence %.2f):\n", result.Confidence)
	for _, cite := range result.Citations {
		source := cite.SourceName
		if cite.Page > 0 {
			source = fmt.Sprintf("%s, page %d", source, cite.Page)
		}
		fmt.Fprintf(w, "  [%d] %s (%.3f)\n", cite.Marker, source, cite.Score)
	}
}

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:   "reembed",
		Usage:  "Rebuild every vector of a collection with the current embedding model",
		Action: reembedAction,
		Flags: []cli.Flag{
			collectionFlag(),
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of documents to process between checkpoints",
				Value: 20,
			},
		},
	}
}

func reembedAction(c *cli.Context) error {
	if c.Int("batch-size") <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	ctx := c.Context
	kb, err := openKnowledgeBase(ctx, c)
	if err != nil {
		return err
	}
	defer kb.Close()

	cfg := kb.Config()
	fmt.Fprintf(os.Stderr, "Data directory: %s\n", cfg.DataDir)
	fmt.Fprintf(os.Stderr, "Embedding provider: %s\n", cfg.AI.Provider)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	report, err := kb.Reembed(ctx, c.String("collection"), c.Int("batch-size"), os.Stderr)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	if report.Skipped > 0 {
		fmt.Fprintf(c.App.Writer, "Skipped %d documents that changed status during the run\n", report.Skipped)
	}
	return nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show document and vector counts for a collection",
		Action: statusAction,
		Flags:  []cli.Flag{collectionFlag()},
	}
}

func statusAction(c *cli.Context) error {
	ctx := c.Context
	kb, err := openKnowledgeBase(ctx, c)
	if err != nil {
		return err
	}
	defer kb.Close()

	status, err := kb.Status(ctx, c.String("collection"))
	if err != nil {
		return err
	}
	printStatus(c.App.Writer, status)
	return nil
}

func printStatus(w io.Writer, status *lore.CollectionStatus) {
	fmt.Fprintf(w, "Collection: %s\n", status.CollectionId)
	statuses := make([]string, 0, len(status.Documents))
	for s := range status.Documents {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(w, "  %-10s %d\n", s, status.Documents[core.DocumentStatus(s)])
	}
	fmt.Fprintf(w, "Vectors: %d\n", status.Vectors)
}

func toIDs(args []string) []core.ID {
	ids := make([]core.ID, 0, len(args))
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			ids = append(ids, core.ID(a))
		}
	}
	return ids
}
