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

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/storage"
)

type createDocumentRequest struct {
	Id         core.ID         `json:"id,omitempty"`
	Name       string          `json:"name,omitempty"`
	SourceKind core.SourceKind `json:"source_kind,omitempty"`
	StorageRef string          `json:"storage_ref"`

	// Ingest starts a background task for the new document.
	Ingest bool `json:"ingest,omitempty"`
}

type createDocumentResponse struct {
	Document documentResponse `json:"document"`
	Task     *taskResponse    `json:"task,omitempty"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.SourceKind == "" {
		req.SourceKind = core.SourceKindOf(req.StorageRef)
	}

	doc := &core.Document{
		Id:           req.Id,
		CollectionId: chi.URLParam(r, "collection"),
		Name:         req.Name,
		SourceKind:   req.SourceKind,
		StorageRef:   strings.TrimSpace(req.StorageRef),
	}
	if err := core.ValidateDocument(doc); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	created, err := s.deps.Documents.CreateDocument(ctx, doc)
	if err != nil {
		jsonError(w, "create document: "+err.Error(), errorStatus(err))
		return
	}

	resp := createDocumentResponse{Document: newDocumentResponse(created)}
	if req.Ingest {
		task, err := s.deps.Tasks.Enqueue(ctx, []core.ID{created.Id}, s.maxConcurrent)
		if err != nil {
			// The document exists; report it and let the caller enqueue again.
			s.logger.Error("failed to enqueue new document", "document", created.Id, "err", err)
		} else {
			tr := newTaskResponse(task)
			resp.Task = &tr
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	filter := storage.DocumentFilter{CollectionId: chi.URLParam(r, "collection")}
	q := r.URL.Query()
	for _, status := range q["status"] {
		filter.Statuses = append(filter.Statuses, core.DocumentStatus(status))
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	docs, err := s.deps.Documents.ListDocuments(r.Context(), filter)
	if err != nil {
		jsonError(w, "list documents: "+err.Error(), errorStatus(err))
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, newDocumentResponse(doc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := core.ID(chi.URLParam(r, "documentID"))

	doc, err := s.deps.Documents.GetDocument(ctx, id)
	if err != nil {
		jsonError(w, "get document: "+err.Error(), errorStatus(err))
		return
	}
	total, err := s.deps.Chunks.CountChunks(ctx, id)
	if err != nil {
		jsonError(w, "count chunks: "+err.Error(), errorStatus(err))
		return
	}
	embedded, err := s.deps.Chunks.CountChunks(ctx, id, core.ChunkStatusEmbedded)
	if err != nil {
		jsonError(w, "count chunks: "+err.Error(), errorStatus(err))
		return
	}

	resp := newDocumentResponse(doc)
	resp.Chunks = &chunkCounts{Total: total, Embedded: embedded}
	writeJSON(w, http.StatusOK, resp)
}
