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

// Package api exposes the knowledge base over HTTP: document registration,
// background ingestion tasks and querying.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/retrieval"
	"github.com/poiesic/lore/storage"
)

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrTaskQueueRequired is returned when a task queue is not provided.
	ErrTaskQueueRequired = errors.New("task queue required")

	// ErrQuerierRequired is returned when a querier is not provided.
	ErrQuerierRequired = errors.New("querier required")
)

// TaskQueue runs ingestion in the background. *ingestion.Queue implements it.
type TaskQueue interface {
	Enqueue(ctx context.Context, documentIDs []core.ID, maxConcurrent int) (*core.Task, error)
	Task(ctx context.Context, id core.ID) (*core.Task, error)
}

// Querier answers questions. *retrieval.Retriever implements it.
type Querier interface {
	Query(ctx context.Context, text, collectionID string, opts retrieval.QueryOptions) (*core.QueryResult, error)
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Documents storage.DocumentRepository
	Chunks    storage.ChunkRepository
	Tasks     TaskQueue
	Querier   Querier
}

// Server is the HTTP API server.
type Server struct {
	router        chi.Router
	deps          Deps
	maxConcurrent int
	maxBodyBytes  int64
	logger        *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMaxConcurrent sets the concurrency used for tasks whose request does
// not name one.
func WithMaxConcurrent(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithMaxBodyBytes caps request bodies. Default is 1 MiB.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, opts ...Option) (*Server, error) {
	switch {
	case deps.Documents == nil:
		return nil, ErrDocumentRepositoryRequired
	case deps.Chunks == nil:
		return nil, ErrChunkRepositoryRequired
	case deps.Tasks == nil:
		return nil, ErrTaskQueueRequired
	case deps.Querier == nil:
		return nil, ErrQuerierRequired
	}
	s := &Server{
		deps:         deps,
		maxBodyBytes: 1 << 20,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "api")
	s.setupRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.logger))

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/collections/{collection}", func(r chi.Router) {
			r.Post("/documents", s.handleCreateDocument)
			r.Get("/documents", s.handleListDocuments)
			r.Post("/query", s.handleQuery)
		})
		r.Get("/documents/{documentID}", s.handleGetDocument)
		r.Post("/ingest", s.handleIngest)
		r.Get("/tasks/{taskID}", s.handleGetTask)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
