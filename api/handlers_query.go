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

	"github.com/poiesic/lore/retrieval"
)

type queryRequest struct {
	Query         string  `json:"query"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
	MaxSources    int     `json:"max_sources,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.MinConfidence > 1 || req.MinConfidence < retrieval.NoThreshold {
		jsonError(w, "min_confidence must be between -1 and 1", http.StatusBadRequest)
		return
	}
	if req.MaxSources < 0 {
		jsonError(w, "max_sources must not be negative", http.StatusBadRequest)
		return
	}

	result, err := s.deps.Querier.Query(r.Context(), req.Query, chi.URLParam(r, "collection"), retrieval.QueryOptions{
		MinConfidence: req.MinConfidence,
		MaxSources:    req.MaxSources,
	})
	if err != nil {
		jsonError(w, "query: "+err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, newQueryResponse(result))
}
