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

package core

// MUS serializers for stored records. cmd/musgen regenerates this file from
// the core types. Fields are written in declaration order; timestamps are
// Unix microseconds in UTC.

import (
	"errors"
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// ErrMalformedRecord indicates encoded bytes that do not describe a record.
var ErrMalformedRecord = errors.New("malformed record")

var (
	IDMUS             = idMUS{}
	TimeMUS           = timeMUS{}
	ProvenanceRefMUS  = provenanceRefMUS{}
	DocumentMUS       = documentMUS{}
	ChunkMUS          = chunkMUS{}
	ExpansionEntryMUS = expansionEntryMUS{}
	EntityMUS         = entityMUS{}
	CheckpointMUS     = checkpointMUS{}
)

var (
	timePtrMUS         = ptrMUS[time.Time]{elem: TimeMUS}
	stringSliceMUS     = sliceMUS[string]{elem: ord.String}
	float32SliceMUS    = sliceMUS[float32]{elem: raw.Float32}
	provenanceSliceMUS = sliceMUS[ProvenanceRef]{elem: ProvenanceRefMUS}
)

// sliceMUS writes a length followed by the elements. An empty slice decodes as nil.
type sliceMUS[T any] struct {
	elem mus.Serializer[T]
}

func (s sliceMUS[T]) Marshal(v []T, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, e := range v {
		n += s.elem.Marshal(e, bs[n:])
	}
	return
}

func (s sliceMUS[T]) Unmarshal(bs []byte) (v []T, n int, err error) {
	length, n, err := s.length(bs)
	if err != nil || length == 0 {
		return
	}
	v = make([]T, length)
	var n1 int
	for i := range v {
		v[i], n1, err = s.elem.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
	}
	return
}

func (s sliceMUS[T]) Size(v []T) (size int) {
	size = varint.Int.Size(len(v))
	for _, e := range v {
		size += s.elem.Size(e)
	}
	return
}

func (s sliceMUS[T]) Skip(bs []byte) (n int, err error) {
	length, n, err := s.length(bs)
	if err != nil {
		return
	}
	var n1 int
	for range length {
		n1, err = s.elem.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

// length reads the element count. Every element takes at least one byte, so
// a count larger than the remaining input is rejected before allocating.
func (s sliceMUS[T]) length(bs []byte) (length, n int, err error) {
	length, n, err = varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 || length > len(bs)-n {
		err = ErrMalformedRecord
	}
	return
}

// ptrMUS writes a presence flag followed by the value when it is set.
type ptrMUS[T any] struct {
	elem mus.Serializer[T]
}

func (s ptrMUS[T]) Marshal(v *T, bs []byte) (n int) {
	n = ord.Bool.Marshal(v != nil, bs)
	if v != nil {
		n += s.elem.Marshal(*v, bs[n:])
	}
	return
}

func (s ptrMUS[T]) Unmarshal(bs []byte) (v *T, n int, err error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return
	}
	elem, n1, err := s.elem.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return nil, n, err
	}
	return &elem, n, nil
}

func (s ptrMUS[T]) Size(v *T) (size int) {
	size = ord.Bool.Size(v != nil)
	if v != nil {
		size += s.elem.Size(*v)
	}
	return
}

func (s ptrMUS[T]) Skip(bs []byte) (n int, err error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return
	}
	n1, err := s.elem.Skip(bs[n:])
	n += n1
	return
}

type idMUS struct{}

func (s idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (s idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	tmp, n, err := varint.Uint64.Unmarshal(bs)
	return ID(tmp), n, err
}

func (s idMUS) Size(v ID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

func (s idMUS) Skip(bs []byte) (n int, err error) {
	return varint.Uint64.Skip(bs)
}

type timeMUS struct{}

func (s timeMUS) Marshal(v time.Time, bs []byte) (n int) {
	return varint.Int64.Marshal(v.UnixMicro(), bs)
}

func (s timeMUS) Unmarshal(bs []byte) (v time.Time, n int, err error) {
	micros, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return
	}
	return time.UnixMicro(micros).UTC(), n, nil
}

func (s timeMUS) Size(v time.Time) (size int) {
	return varint.Int64.Size(v.UnixMicro())
}

func (s timeMUS) Skip(bs []byte) (n int, err error) {
	return varint.Int64.Skip(bs)
}

// fieldReader advances through bs and keeps the first error.
type fieldReader struct {
	bs  []byte
	n   int
	err error
}

func (r *fieldReader) read(fn func(bs []byte) (int, error)) {
	if r.err != nil {
		return
	}
	n, err := fn(r.bs[r.n:])
	r.n += n
	r.err = err
}

func (r *fieldReader) string() (v string) {
	r.read(func(bs []byte) (n int, err error) {
		v, n, err = ord.String.Unmarshal(bs)
		return
	})
	return
}

func (r *fieldReader) int() (v int) {
	r.read(func(bs []byte) (n int, err error) {
		v, n, err = varint.Int.Unmarshal(bs)
		return
	})
	return
}

func (r *fieldReader) bool() (v bool) {
	r.read(func(bs []byte) (n int, err error) {
		v, n, err = ord.Bool.Unmarshal(bs)
		return
	})
	return
}

func (r *fieldReader) id() (v ID) {
	r.read(func(bs []byte) (n int, err error) {
		v, n, err = IDMUS.Unmarshal(bs)
		return
	})
	return
}

func (r *fieldReader) time() (v time.Time) {
	r.read(func(bs []byte) (n int, err error) {
		v, n, err = TimeMUS.Unmarshal(bs)
		return
	})
	return
}

func (r *fieldReader) timePtr() (v *time.Time) {
	r.read(func(bs []byte) (n int, err error) {
		v, n, err = timePtrMUS.Unmarshal(bs)
		return
	})
	return
}

func (r *fieldReader) strings() (v []string) {
	r.read(func(bs []byte) (n int, err error) {
		v, n, err = stringSliceMUS.Unmarshal(bs)
		return
	})
	return
}

func (r *fieldReader) skip(fns ...func(bs []byte) (int, error)) {
	for _, fn := range fns {
		r.read(fn)
	}
}

type provenanceRefMUS struct{}

func (s provenanceRefMUS) Marshal(v ProvenanceRef, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ChunkId, bs)
	n += ord.String.Marshal(v.Quote, bs[n:])
	n += varint.Int.Marshal(v.Confidence, bs[n:])
	return
}

func (s provenanceRefMUS) Unmarshal(bs []byte) (v ProvenanceRef, n int, err error) {
	r := fieldReader{bs: bs}
	v.ChunkId = r.id()
	v.Quote = r.string()
	v.Confidence = r.int()
	return v, r.n, r.err
}

func (s provenanceRefMUS) Size(v ProvenanceRef) (size int) {
	return IDMUS.Size(v.ChunkId) + ord.String.Size(v.Quote) + varint.Int.Size(v.Confidence)
}

func (s provenanceRefMUS) Skip(bs []byte) (n int, err error) {
	r := fieldReader{bs: bs}
	r.skip(IDMUS.Skip, ord.String.Skip, varint.Int.Skip)
	return r.n, r.err
}

type documentMUS struct{}

func (s documentMUS) Marshal(v Document, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Title, bs[n:])
	n += ord.String.Marshal(string(v.ContentType), bs[n:])
	n += ord.String.Marshal(string(v.SourceType), bs[n:])
	n += ord.String.Marshal(string(v.Status), bs[n:])
	n += ord.String.Marshal(v.Error, bs[n:])
	n += ord.String.Marshal(string(v.FailureKind), bs[n:])
	n += varint.Int.Marshal(v.Size, bs[n:])
	n += TimeMUS.Marshal(v.CreatedAt, bs[n:])
	n += TimeMUS.Marshal(v.UpdatedAt, bs[n:])
	n += timePtrMUS.Marshal(v.ProcessedAt, bs[n:])
	return
}

func (s documentMUS) Unmarshal(bs []byte) (v Document, n int, err error) {
	r := fieldReader{bs: bs}
	v.Id = r.id()
	v.Title = r.string()
	v.ContentType = ContentType(r.string())
	v.SourceType = SourceType(r.string())
	v.Status = DocumentStatus(r.string())
	v.Error = r.string()
	v.FailureKind = FailureKind(r.string())
	v.Size = r.int()
	v.CreatedAt = r.time()
	v.UpdatedAt = r.time()
	v.ProcessedAt = r.timePtr()
	return v, r.n, r.err
}

func (s documentMUS) Size(v Document) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.Title)
	size += ord.String.Size(string(v.ContentType))
	size += ord.String.Size(string(v.SourceType))
	size += ord.String.Size(string(v.Status))
	size += ord.String.Size(v.Error)
	size += ord.String.Size(string(v.FailureKind))
	size += varint.Int.Size(v.Size)
	size += TimeMUS.Size(v.CreatedAt)
	size += TimeMUS.Size(v.UpdatedAt)
	size += timePtrMUS.Size(v.ProcessedAt)
	return
}

func (s documentMUS) Skip(bs []byte) (n int, err error) {
	r := fieldReader{bs: bs}
	r.skip(IDMUS.Skip,
		ord.String.Skip, ord.String.Skip, ord.String.Skip,
		ord.String.Skip, ord.String.Skip, ord.String.Skip,
		varint.Int.Skip, TimeMUS.Skip, TimeMUS.Skip, timePtrMUS.Skip)
	return r.n, r.err
}

type chunkMUS struct{}

func (s chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += IDMUS.Marshal(v.DocumentId, bs[n:])
	n += varint.Int.Marshal(v.Sequence, bs[n:])
	n += ord.String.Marshal(v.Content, bs[n:])
	n += varint.Int.Marshal(v.Start, bs[n:])
	n += varint.Int.Marshal(v.End, bs[n:])
	n += float32SliceMUS.Marshal(v.Vector, bs[n:])
	n += ord.Bool.Marshal(v.Indexed, bs[n:])
	return
}

func (s chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	r := fieldReader{bs: bs}
	v.Id = r.id()
	v.DocumentId = r.id()
	v.Sequence = r.int()
	v.Content = r.string()
	v.Start = r.int()
	v.End = r.int()
	r.read(func(bs []byte) (n int, err error) {
		v.Vector, n, err = float32SliceMUS.Unmarshal(bs)
		return
	})
	v.Indexed = r.bool()
	return v, r.n, r.err
}

func (s chunkMUS) Size(v Chunk) (size int) {
	size = IDMUS.Size(v.Id)
	size += IDMUS.Size(v.DocumentId)
	size += varint.Int.Size(v.Sequence)
	size += ord.String.Size(v.Content)
	size += varint.Int.Size(v.Start)
	size += varint.Int.Size(v.End)
	size += float32SliceMUS.Size(v.Vector)
	size += ord.Bool.Size(v.Indexed)
	return
}

func (s chunkMUS) Skip(bs []byte) (n int, err error) {
	r := fieldReader{bs: bs}
	r.skip(IDMUS.Skip, IDMUS.Skip, varint.Int.Skip, ord.String.Skip,
		varint.Int.Skip, varint.Int.Skip, float32SliceMUS.Skip, ord.Bool.Skip)
	return r.n, r.err
}

type expansionEntryMUS struct{}

func (s expansionEntryMUS) Marshal(v ExpansionEntry, bs []byte) (n int) {
	n = ord.String.Marshal(v.Hash, bs)
	n += ord.String.Marshal(v.Query, bs[n:])
	n += stringSliceMUS.Marshal(v.Expansions, bs[n:])
	n += TimeMUS.Marshal(v.CreatedAt, bs[n:])
	return
}

func (s expansionEntryMUS) Unmarshal(bs []byte) (v ExpansionEntry, n int, err error) {
	r := fieldReader{bs: bs}
	v.Hash = r.string()
	v.Query = r.string()
	v.Expansions = r.strings()
	v.CreatedAt = r.time()
	return v, r.n, r.err
}

func (s expansionEntryMUS) Size(v ExpansionEntry) (size int) {
	return ord.String.Size(v.Hash) + ord.String.Size(v.Query) +
		stringSliceMUS.Size(v.Expansions) + TimeMUS.Size(v.CreatedAt)
}

func (s expansionEntryMUS) Skip(bs []byte) (n int, err error) {
	r := fieldReader{bs: bs}
	r.skip(ord.String.Skip, ord.String.Skip, stringSliceMUS.Skip, TimeMUS.Skip)
	return r.n, r.err
}

type entityMUS struct{}

func (s entityMUS) Marshal(v Entity, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(string(v.Type), bs[n:])
	n += ord.String.Marshal(v.Label, bs[n:])
	n += ord.String.Marshal(v.Key, bs[n:])
	n += varint.Int.Marshal(v.Confidence, bs[n:])
	n += varint.Int.Marshal(v.BaseConfidence, bs[n:])
	n += varint.Int.Marshal(v.Members, bs[n:])
	n += stringSliceMUS.Marshal(v.Aliases, bs[n:])
	n += provenanceSliceMUS.Marshal(v.Provenance, bs[n:])
	n += TimeMUS.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (s entityMUS) Unmarshal(bs []byte) (v Entity, n int, err error) {
	r := fieldReader{bs: bs}
	v.Id = r.id()
	v.Type = EntityType(r.string())
	v.Label = r.string()
	v.Key = r.string()
	v.Confidence = r.int()
	v.BaseConfidence = r.int()
	v.Members = r.int()
	v.Aliases = r.strings()
	r.read(func(bs []byte) (n int, err error) {
		v.Provenance, n, err = provenanceSliceMUS.Unmarshal(bs)
		return
	})
	v.UpdatedAt = r.time()
	return v, r.n, r.err
}

func (s entityMUS) Size(v Entity) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(string(v.Type))
	size += ord.String.Size(v.Label)
	size += ord.String.Size(v.Key)
	size += varint.Int.Size(v.Confidence)
	size += varint.Int.Size(v.BaseConfidence)
	size += varint.Int.Size(v.Members)
	size += stringSliceMUS.Size(v.Aliases)
	size += provenanceSliceMUS.Size(v.Provenance)
	size += TimeMUS.Size(v.UpdatedAt)
	return
}

func (s entityMUS) Skip(bs []byte) (n int, err error) {
	r := fieldReader{bs: bs}
	r.skip(IDMUS.Skip, ord.String.Skip, ord.String.Skip, ord.String.Skip,
		varint.Int.Skip, varint.Int.Skip, varint.Int.Skip,
		stringSliceMUS.Skip, provenanceSliceMUS.Skip, TimeMUS.Skip)
	return r.n, r.err
}

type checkpointMUS struct{}

func (s checkpointMUS) Marshal(v Checkpoint, bs []byte) (n int) {
	n = ord.String.Marshal(v.Worker, bs)
	n += ord.String.Marshal(v.RunId, bs[n:])
	n += varint.Int.Marshal(v.Processed, bs[n:])
	n += varint.Int.Marshal(v.Successful, bs[n:])
	n += varint.Int.Marshal(v.Failed, bs[n:])
	n += varint.Int.Marshal(v.Interrupted, bs[n:])
	n += TimeMUS.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (s checkpointMUS) Unmarshal(bs []byte) (v Checkpoint, n int, err error) {
	r := fieldReader{bs: bs}
	v.Worker = r.string()
	v.RunId = r.string()
	v.Processed = r.int()
	v.Successful = r.int()
	v.Failed = r.int()
	v.Interrupted = r.int()
	v.UpdatedAt = r.time()
	return v, r.n, r.err
}

func (s checkpointMUS) Size(v Checkpoint) (size int) {
	size = ord.String.Size(v.Worker)
	size += ord.String.Size(v.RunId)
	size += varint.Int.Size(v.Processed)
	size += varint.Int.Size(v.Successful)
	size += varint.Int.Size(v.Failed)
	size += varint.Int.Size(v.Interrupted)
	size += TimeMUS.Size(v.UpdatedAt)
	return
}

func (s checkpointMUS) Skip(bs []byte) (n int, err error) {
	r := fieldReader{bs: bs}
	r.skip(ord.String.Skip, ord.String.Skip,
		varint.Int.Skip, varint.Int.Skip, varint.Int.Skip, varint.Int.Skip,
		TimeMUS.Skip)
	return r.n, r.err
}
