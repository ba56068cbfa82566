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

package retrieval

import (
	"log/slog"

	"github.com/poiesic/lore/core"
)

// QueryMonitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results of a query.
type QueryMonitor interface {
	Start(query, collectionID string)
	AfterEmbedding(vector []float32, err error)
	AfterSearch(candidates []core.VectorMatch, err error)
	AfterFilter(kept []core.VectorMatch)
	Fallback(reason string)
	AfterGeneration(answer string, err error)
	Finish(result *core.QueryResult)
}

// noopMonitor is a no-op implementation of QueryMonitor
type noopMonitor struct{}

var _ QueryMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ string)                         {}
func (n *noopMonitor) AfterEmbedding(_ []float32, _ error)       {}
func (n *noopMonitor) AfterSearch(_ []core.VectorMatch, _ error) {}
func (n *noopMonitor) AfterFilter(_ []core.VectorMatch)          {}
func (n *noopMonitor) Fallback(_ string)                         {}
func (n *noopMonitor) AfterGeneration(_ string, _ error)         {}
func (n *noopMonitor) Finish(_ *core.QueryResult)                {}

// LogMonitor reports every stage to a logger at debug level. The CLI uses
// it for --verbose queries.
type LogMonitor struct {
	Logger *slog.Logger
}

var _ QueryMonitor = (*LogMonitor)(nil)

func (m *LogMonitor) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *LogMonitor) Start(query, collectionID string) {
	m.logger().Debug("query started", "query", query, "collection", collectionID)
}

func (m *LogMonitor) AfterEmbedding(vector []float32, err error) {
	if err != nil {
		m.logger().Debug("query embedding failed", "err", err)
		return
	}
	m.logger().Debug("query embedded", "dimensions", len(vector))
}

func (m *LogMonitor) AfterSearch(candidates []core.VectorMatch, err error) {
	if err != nil {
		m.logger().Debug("vector search failed", "err", err)
		return
	}
	for _, c := range candidates {
		m.logger().Debug("candidate", "source", c.Metadata.SourceName, "chunk", c.Metadata.ChunkIndex, "score", c.Score)
	}
}

func (m *LogMonitor) AfterFilter(kept []core.VectorMatch) {
	m.logger().Debug("candidates above threshold", "count", len(kept))
}

func (m *LogMonitor) Fallback(reason string) {
	m.logger().Debug("using fallback answer", "reason", reason)
}

func (m *LogMonitor) AfterGeneration(answer string, err error) {
	if err != nil {
		m.logger().Debug("answer generation failed", "err", err)
		return
	}
	m.logger().Debug("answer generated", "length", len(answer))
}

func (m *LogMonitor) Finish(result *core.QueryResult) {
	m.logger().Debug("query finished", "citations", len(result.Citations), "confidence", result.Confidence, "fallback", result.Fallback)
}
