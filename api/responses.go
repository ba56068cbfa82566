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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/ingestion"
	"github.com/poiesic/lore/retrieval"
	"github.com/poiesic/lore/storage"
)

type documentResponse struct {
	Id                   core.ID                 `json:"id"`
	CollectionId         string                  `json:"collection_id"`
	Name                 string                  `json:"name,omitempty"`
	SourceKind           core.SourceKind         `json:"source_kind"`
	StorageRef           string                  `json:"storage_ref"`
	Status               core.DocumentStatus     `json:"status"`
	ErrorMessage         string                  `json:"error_message,omitempty"`
	Metadata             core.ProcessingMetadata `json:"metadata"`
	ProcessingStartedAt  *time.Time              `json:"processing_started_at,omitempty"`
	ProcessingFinishedAt *time.Time              `json:"processing_finished_at,omitempty"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
	Chunks               *chunkCounts            `json:"chunks,omitempty"`
}

type chunkCounts struct {
	Total    int `json:"total"`
	Embedded int `json:"embedded"`
}

func newDocumentResponse(doc *core.Document) documentResponse {
	return documentResponse{
		Id:                   doc.Id,
		CollectionId:         doc.CollectionId,
		Name:                 doc.Name,
		SourceKind:           doc.SourceKind,
		StorageRef:           doc.StorageRef,
		Status:               doc.Status,
		ErrorMessage:         doc.ErrorMessage,
		Metadata:             doc.Metadata,
		ProcessingStartedAt:  optionalTime(doc.ProcessingStartedAt),
		ProcessingFinishedAt: optionalTime(doc.ProcessingFinishedAt),
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
	}
}

type taskResponse struct {
	Id            core.ID            `json:"id"`
	Status        core.TaskStatus    `json:"status"`
	DocumentIds   []core.ID          `json:"document_ids"`
	MaxConcurrent int                `json:"max_concurrent"`
	Succeeded     int                `json:"succeeded"`
	Failed        int                `json:"failed"`
	Failures      map[core.ID]string `json:"failures,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	FinishedAt    *time.Time         `json:"finished_at,omitempty"`
	PollURL       string             `json:"poll_url"`
}

func newTaskResponse(task *core.Task) taskResponse {
	return taskResponse{
		Id:            task.Id,
		Status:        task.Status,
		DocumentIds:   task.DocumentIds,
		MaxConcurrent: task.MaxConcurrent,
		Succeeded:     task.Succeeded,
		Failed:        task.Failed,
		Failures:      task.Failures,
		CreatedAt:     task.CreatedAt,
		StartedAt:     optionalTime(task.StartedAt),
		FinishedAt:    optionalTime(task.FinishedAt),
		PollURL:       fmt.Sprintf("/v1/tasks/%s", task.Id),
	}
}

type citationResponse struct {
	Marker     int     `json:"marker"`
	DocumentId core.ID `json:"document_id"`
	SourceName string  `json:"source_name"`
	Page       int     `json:"page,omitempty"`
	Snippet    string  `json:"snippet"`
	Score      float32 `json:"score"`
}

// segmentResponse is a run of answer text; Markers lists the citations a
// marker segment resolved to and is absent for prose.
type segmentResponse struct {
	Text    string `json:"text"`
	Markers []int  `json:"markers,omitempty"`
}

type queryResponse struct {
	Content       string             `json:"content"`
	Citations     []citationResponse `json:"citations"`
	Confidence    float64            `json:"confidence"`
	DocumentsUsed []string           `json:"documents_used"`
	Fallback      bool               `json:"fallback"`
	Segments      []segmentResponse  `json:"segments"`
}

func newQueryResponse(result *core.QueryResult) queryResponse {
	resp := queryResponse{
		Content:       result.Content,
		Citations:     make([]citationResponse, 0, len(result.Citations)),
		Confidence:    result.Confidence,
		DocumentsUsed: result.DocumentsUsed,
		Fallback:      result.Fallback,
	}
	if resp.DocumentsUsed == nil {
		resp.DocumentsUsed = []string{}
	}
	for _, c := range result.Citations {
		resp.Citations = append(resp.Citations, citationResponse{
			Marker:     c.Marker,
			DocumentId: c.DocumentId,
			SourceName: c.SourceName,
			Page:       c.Page,
			Snippet:    c.Snippet,
			Score:      c.Score,
		})
	}
	segments := retrieval.ResolveCitationMarkers(result.Content, result.Citations)
	resp.Segments = make([]segmentResponse, 0, len(segments))
	for _, seg := range segments {
		out := segmentResponse{Text: seg.Text}
		if seg.Citations != nil {
			out.Markers = make([]int, 0, len(seg.Citations))
			for _, c := range seg.Citations {
				out.Markers = append(out.Markers, c.Marker)
			}
		}
		resp.Segments = append(resp.Segments, out)
	}
	return resp
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// decodeJSON reads a size-capped JSON body into v. Unknown fields are rejected.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidDocument),
		errors.Is(err, retrieval.ErrEmptyQuery),
		errors.Is(err, core.ErrEmptyCollection):
		return http.StatusBadRequest
	case errors.Is(err, ingestion.ErrQueueClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
