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

// Package queue distributes document ingestion over asynq. Each document
// is one task; the asynq server bounds concurrency and retries failures,
// and the worker runs the same Ingestor used in-process.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/poiesic/lore/core"
)

const (
	// TypeIngestDocument is the asynq task type for single-document ingestion.
	TypeIngestDocument = "lore:ingest"

	// DefaultQueue is the asynq queue ingestion tasks are placed on.
	DefaultQueue = "ingestion"

	DefaultMaxRetry  = 3
	DefaultTimeout   = 30 * time.Minute
	DefaultRetention = 24 * time.Hour
)

// IngestPayload is the JSON body of an ingestion task.
type IngestPayload struct {
	DocumentID core.ID `json:"document_id"`
}

// TaskID is the asynq task id for documentID. While a task with this id
// is retained, enqueueing the same document again is rejected.
func TaskID(documentID core.ID) string {
	return "ingest:" + string(documentID)
}

// NewIngestTask builds the task for one document. opts are appended to the
// defaults and win over them.
func NewIngestTask(documentID core.ID, opts ...asynq.Option) (*asynq.Task, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: empty document id", ErrInvalidPayload)
	}
	payload, err := json.Marshal(IngestPayload{DocumentID: documentID})
	if err != nil {
		return nil, err
	}
	defaults := []asynq.Option{
		asynq.TaskID(TaskID(documentID)),
		asynq.MaxRetry(DefaultMaxRetry),
		asynq.Timeout(DefaultTimeout),
		asynq.Retention(DefaultRetention),
		asynq.Queue(DefaultQueue),
	}
	return asynq.NewTask(TypeIngestDocument, payload, append(defaults, opts...)...), nil
}

// ParseIngestPayload decodes and checks a task payload.
func ParseIngestPayload(t *asynq.Task) (IngestPayload, error) {
	var p IngestPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if p.DocumentID == "" {
		return p, fmt.Errorf("%w: missing document id", ErrInvalidPayload)
	}
	return p, nil
}
