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

	"github.com/go-chi/chi/v5"

	"github.com/poiesic/lore/core"
)

type ingestRequest struct {
	DocumentIds   []core.ID `json:"document_ids"`
	MaxConcurrent int       `json:"max_concurrent,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.DocumentIds) == 0 {
		jsonError(w, "document_ids is required", http.StatusBadRequest)
		return
	}
	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = s.maxConcurrent
	}

	task, err := s.deps.Tasks.Enqueue(r.Context(), req.DocumentIds, maxConcurrent)
	if err != nil {
		jsonError(w, "enqueue: "+err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusAccepted, newTaskResponse(task))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.deps.Tasks.Task(r.Context(), core.ID(chi.URLParam(r, "taskID")))
	if err != nil {
		jsonError(w, "get task: "+err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(task))
}
