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

// Package retrieval answers questions against an indexed collection.
//
// A query is embedded, matched against the collection's vectors, filtered
// by a confidence threshold and turned into a grounded answer whose [n]
// markers point at numbered citations. When nothing clears the threshold a
// FallbackStrategy phrases the gap instead. Provider and store failures
// degrade the answer; they are never returned to the caller.
package retrieval
