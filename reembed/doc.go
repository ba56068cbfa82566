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

// Package reembed rebuilds the vectors of a collection's completed documents
// with the current embedder, for example after switching embedding models
// or to replace mock vectors written while the provider was down.
//
// Documents are processed in creation order, a batch at a time. After each
// batch a checkpoint is saved so an interrupted run resumes where it
// stopped. Chunk texts are not re-extracted; only vectors change.
package reembed
