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

// Package storage provides the storage abstraction layer for lore.
//
// This package defines repository interfaces that decouple storage
// implementation from business logic:
//
//   - DocumentRepository: document rows and their status machine
//   - ChunkRepository: chunk rows, replaced and re-statused in bulk
//   - VectorStore: embeddings with metadata, partitioned by collection
//   - TaskRepository: background ingestion task handles
//
// Two backends implement them. storage/sqlite keeps the relational rows
// (documents, chunks) behind a versioned schema. storage/badger keeps vector
// records and tasks as mus-encoded values.
//
// # Constructor Return Type Pattern
//
// Public constructors return interfaces to enforce abstraction:
//
//	docs, chunks, err := sqlite.NewRepositories(db)  // storage interfaces
//	vectors, err := badger.NewVectorStore(backend)   // storage.VectorStore
//
// Internal constructors may return concrete types since they're only used
// within the implementation package.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
