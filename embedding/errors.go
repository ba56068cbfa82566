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

package embedding

import "errors"

var (
	// ErrProviderFailure indicates the embedding provider failed after
	// retries and the generator was configured to propagate failures.
	ErrProviderFailure = errors.New("embedding provider failure")

	// ErrEmbedderRequired is returned when constructing a Generator without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrDimensionMismatch indicates vectors of differing lengths.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrCountMismatch indicates the provider returned a different number
	// of vectors than texts it was given.
	ErrCountMismatch = errors.New("embedding count mismatch")
)
