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

package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress is a snapshot of a running re-embed.
type Progress struct {
	Done    int
	Total   int
	Skipped int
	Chunks  int
	Elapsed time.Duration
}

// Percent is the share of documents handled, skipped ones included.
// An empty run counts as complete.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Done+p.Skipped) / float64(p.Total) * 100
}

// ChunkRate is chunks written per second.
func (p Progress) ChunkRate() float64 {
	if p.Elapsed <= 0 {
		return 0
	}
	return float64(p.Chunks) / p.Elapsed.Seconds()
}

func (p Progress) String() string {
	s := fmt.Sprintf("%d/%d documents (%.1f%%), %d chunks", p.Done+p.Skipped, p.Total, p.Percent(), p.Chunks)
	if p.Skipped > 0 {
		s += fmt.Sprintf(", %d skipped", p.Skipped)
	}
	return s + fmt.Sprintf(" - %.1f chunks/s", p.ChunkRate())
}

// ProgressTracker writes a single self-overwriting progress line every
// `every` documents. A tracker that was never started stays silent.
type ProgressTracker struct {
	mu      sync.Mutex
	out     io.Writer
	every   int
	state   Progress
	printed int
	began   time.Time
	running bool
}

// NewProgressTracker reports to out (io.Discard when nil) for a run of
// total documents.
func NewProgressTracker(out io.Writer, total, every int) *ProgressTracker {
	if out == nil {
		out = io.Discard
	}
	return &ProgressTracker{
		out:   out,
		every: max(every, 1),
		state: Progress{Total: total},
	}
}

// Start resets the counters and the clock.
func (t *ProgressTracker) Start() {
	t.mu.Lock()
	t.state = Progress{Total: t.state.Total}
	t.printed = 0
	t.began = time.Now()
	t.running = true
	t.mu.Unlock()
}

// Document records a re-embedded document that wrote chunks vectors.
func (t *ProgressTracker) Document(chunks int) {
	t.record(func(p *Progress) {
		p.Done++
		p.Chunks += chunks
	})
}

// Skip records a document that was passed over.
func (t *ProgressTracker) Skip() {
	t.record(func(p *Progress) { p.Skipped++ })
}

func (t *ProgressTracker) record(fn func(*Progress)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running || t.state.Done+t.state.Skipped >= t.state.Total {
		return
	}
	fn(&t.state)
	if n := t.state.Done + t.state.Skipped; n-t.printed >= t.every {
		t.printed = n
		fmt.Fprintf(t.out, "\rProgress: %s", t.snapshot())
	}
}

// Snapshot returns the current counts.
func (t *ProgressTracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *ProgressTracker) snapshot() Progress {
	p := t.state
	if t.running {
		p.Elapsed = time.Since(t.began)
	}
	return p
}

// Finish prints the counts recorded so far and ends the line. It reports
// what happened, not that the run completed.
func (t *ProgressTracker) Finish() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.snapshot()
	if t.running {
		fmt.Fprintf(t.out, "\rProgress: %s\n", p)
	}
	return p
}
