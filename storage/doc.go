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

// Package storage provides the storage abstraction layer for lexis.
//
// This package defines repository interfaces that decouple storage implementation
// from pipeline logic:
//
//   - DocumentRepository: documents, raw content and the status state machine
//   - ChunkRepository: chunks, vectors and cosine search
//   - ExpansionCache: query expansions keyed by normalized query hash
//   - EntityRepository: resolved entities indexed by (type, key)
//
// # Implementations
//
//   - storage/badger: the durable store for every repository
//   - storage/redis: a shared ExpansionCache for several workers
//
// # Conditional Updates
//
// Status changes are compare-and-swap operations. Claim and Transition read
// the current record and write the new one in a single read-write
// transaction; a mismatch or a concurrent commit surfaces as ErrConflict,
// which callers treat as "someone else owns this document".
//
// # Serialization
//
// Records are encoded with the MUS serializers in core (see cmd/musgen).
// Timestamps keep microsecond precision; use Timestamp before storing one
// that a later conditional update compares against. IDs used inside keys
// are 8 big-endian bytes so byte order matches numeric order.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
