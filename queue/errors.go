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

package queue

import "errors"

var (
	// ErrClientRequired is returned when a producer has no asynq client.
	ErrClientRequired = errors.New("asynq client required")

	// ErrIngesterRequired is returned when a processor has no ingester.
	ErrIngesterRequired = errors.New("ingester required")

	// ErrInvalidPayload is returned for tasks whose payload cannot be decoded.
	ErrInvalidPayload = errors.New("invalid ingest payload")
)
