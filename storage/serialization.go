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

package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/lore/core"
)

// formatVersion prefixes every encoded value so the layout can evolve.
const formatVersion = 1

// fieldWriter is implemented by sizer and encoder so each record layout is
// written once and used for both passes.
type fieldWriter interface {
	str(v string)
	num(v int)
	num64(v int64)
	flag(v bool)
	f32(v float32)
}

type sizer struct{ n int }

func (s *sizer) str(v string) { s.n += ord.String.Size(v) }
func (s *sizer) num(v int) { s.n += varint.Int.Size(v) }
func (s *sizer) num64(v int64) { s.n += varint.Int64.Size(v) }
func (s *sizer) flag(v bool) { s.n += ord.Bool.Size(v) }
func (s *sizer) f32(v float32) { s.n += raw.Float32.Size(v) }

type encoder struct {
	bs []byte
	n  int
}

func (e *encoder) str(v string) { e.n += ord.String.Marshal(v, e.bs[e.n:]) }
func (e *encoder) num(v int) { e.n += varint.Int.Marshal(v, e.bs[e.n:]) }
func (e *encoder) num64(v int64) { e.n += varint.Int64.Marshal(v, e.bs[e.n:]) }
func (e *encoder) flag(v bool) { e.n += ord.Bool.Marshal(v, e.bs[e.n:]) }
func (e *encoder) f32(v float32) { e.n += raw.Float32.Marshal(v, e.bs[e.n:]) }

// decoder reads fields in order and keeps the first error.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) str() (v string) {
	if d.err == nil {
		var n int
		v, n, d.err = ord.String.Unmarshal(d.bs[d.n:])
		d.n += n
	}
	return
}

func (d *decoder) num() (v int) {
	if d.err == nil {
		var n int
		v, n, d.err = varint.Int.Unmarshal(d.bs[d.n:])
		d.n += n
	}
	return
}

func (d *decoder) num64() (v int64) {
	if d.err == nil {
		var n int
		v, n, d.err = varint.Int64.Unmarshal(d.bs[d.n:])
		d.n += n
	}
	return
}

func (d *decoder) flag() (v bool) {
	if d.err == nil {
		var n int
		v, n, d.err = ord.Bool.Unmarshal(d.bs[d.n:])
		d.n += n
	}
	return
}

func (d *decoder) f32() (v float32) {
	if d.err == nil {
		var n int
		v, n, d.err = raw.Float32.Unmarshal(d.bs[d.n:])
		d.n += n
	}
	return
}

// length reads a collection length and rejects values the remaining bytes
// cannot possibly hold.
func (d *decoder) length() int {
	l := d.num()
	if d.err == nil && (l < 0 || l > len(d.bs)-d.n) {
		d.err = ErrTruncatedData
	}
	if d.err != nil {
		return 0
	}
	return l
}

func (d *decoder) version() {
	if v := d.num(); d.err == nil && v != formatVersion {
		d.err = fmt.Errorf("unknown format version %d", v)
	}
}

func (d *decoder) result() error {
	if d.err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, d.err)
	}
	return nil
}

// Times are stored as Unix microseconds; zero means the zero time.
func timeMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func marshal(write func(fieldWriter)) []byte {
	s := &sizer{}
	write(s)
	e := &encoder{bs: make([]byte, s.n)}
	write(e)
	return e.bs
}

func writeVectorRecord(w fieldWriter, r *core.VectorRecord) {
	w.num(formatVersion)
	w.str(string(r.Id))
	w.num(len(r.Vector))
	for _, v := range r.Vector {
		w.f32(v)
	}
	m := r.Metadata
	w.str(string(m.DocumentId))
	w.str(m.CollectionId)
	w.str(m.SourceName)
	w.str(string(m.SourceKind))
	w.str(m.Snippet)
	w.num(m.Page)
	w.num(m.ChunkIndex)
	w.flag(m.MockEmbedding)
}

// MarshalVectorRecord serializes a VectorRecord to bytes.
func MarshalVectorRecord(record *core.VectorRecord) []byte {
	return marshal(func(w fieldWriter) { writeVectorRecord(w, record) })
}

// UnmarshalVectorRecord deserializes a VectorRecord from bytes.
func UnmarshalVectorRecord(data []byte) (*core.VectorRecord, error) {
	d := &decoder{bs: data}
	d.version()

	r := &core.VectorRecord{Id: core.ID(d.str())}
	if n := d.length(); n > 0 {
		r.Vector = make([]float32, n)
		for i := range r.Vector {
			r.Vector[i] = d.f32()
		}
	}
	r.Metadata = core.VectorMetadata{
		DocumentId:    core.ID(d.str()),
		CollectionId:  d.str(),
		SourceName:    d.str(),
		SourceKind:    core.SourceKind(d.str()),
		Snippet:       d.str(),
		Page:          d.num(),
		ChunkIndex:    d.num(),
		MockEmbedding: d.flag(),
	}

	if err := d.result(); err != nil {
		return nil, err
	}
	return r, nil
}

// MarshalVector serializes a bare vector, as used for cached query embeddings.
func MarshalVector(v []float32) []byte {
	return marshal(func(w fieldWriter) {
		w.num(formatVersion)
		w.num(len(v))
		for _, f := range v {
			w.f32(f)
		}
	})
}

// UnmarshalVector deserializes a vector written by MarshalVector.
func UnmarshalVector(data []byte) ([]float32, error) {
	d := &decoder{bs: data}
	d.version()

	var v []float32
	if n := d.length(); n > 0 {
		v = make([]float32, n)
		for i := range v {
			v[i] = d.f32()
		}
	}

	if err := d.result(); err != nil {
		return nil, err
	}
	return v, nil
}

func writeTask(w fieldWriter, t *core.Task) {
	w.num(formatVersion)
	w.str(string(t.Id))
	w.num(len(t.DocumentIds))
	for _, id := range t.DocumentIds {
		w.str(string(id))
	}
	w.num(t.MaxConcurrent)
	w.str(string(t.Status))
	w.num(t.Succeeded)
	w.num(t.Failed)

	keys := make([]string, 0, len(t.Failures))
	for id := range t.Failures {
		keys = append(keys, string(id))
	}
	sort.Strings(keys)
	w.num(len(keys))
	for _, k := range keys {
		w.str(k)
		w.str(t.Failures[core.ID(k)])
	}

	w.num64(timeMicros(t.CreatedAt))
	w.num64(timeMicros(t.StartedAt))
	w.num64(timeMicros(t.FinishedAt))
}

// MarshalTask serializes a Task to bytes.
func MarshalTask(task *core.Task) []byte {
	return marshal(func(w fieldWriter) { writeTask(w, task) })
}

// UnmarshalTask deserializes a Task from bytes.
func UnmarshalTask(data []byte) (*core.Task, error) {
	d := &decoder{bs: data}
	d.version()

	t := &core.Task{Id: core.ID(d.str())}
	if n := d.length(); n > 0 {
		t.DocumentIds = make([]core.ID, n)
		for i := range t.DocumentIds {
			t.DocumentIds[i] = core.ID(d.str())
		}
	}
	t.MaxConcurrent = d.num()
	t.Status = core.TaskStatus(d.str())
	t.Succeeded = d.num()
	t.Failed = d.num()
	if n := d.length(); n > 0 {
		t.Failures = make(map[core.ID]string, n)
		for i := 0; i < n; i++ {
			k := d.str()
			t.Failures[core.ID(k)] = d.str()
		}
	}
	t.CreatedAt = fromMicros(d.num64())
	t.StartedAt = fromMicros(d.num64())
	t.FinishedAt = fromMicros(d.num64())

	if err := d.result(); err != nil {
		return nil, err
	}
	return t, nil
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, ord.String.Size(string(id)))
	ord.String.Marshal(string(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	s, _, err := ord.String.Unmarshal(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return core.ID(s), nil
}

func writeCheckpoint(w fieldWriter, c *core.Checkpoint) {
	w.num(formatVersion)
	w.str(c.Name)
	w.str(c.Position)
	w.num64(timeMicros(c.UpdatedAt))
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	return marshal(func(w fieldWriter) { writeCheckpoint(w, checkpoint) })
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	d := &decoder{bs: data}
	d.version()
	c := &core.Checkpoint{
		Name:     d.str(),
		Position: d.str(),
	}
	c.UpdatedAt = fromMicros(d.num64())
	if err := d.result(); err != nil {
		return nil, err
	}
	return c, nil
}
