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

package badger

import "github.com/poiesic/lexis/storage"

// MemoryRepositories bundles in-memory repositories for tests.
type MemoryRepositories struct {
	Backend     *Backend
	Documents   *DocumentRepository
	Chunks      *ChunkRepository
	Expansions  *ExpansionCache
	Entities    *EntityRepository
	Checkpoints *CheckpointRepository
}

// NewMemoryRepositories creates every repository over one in-memory backend.
// merge is passed to the entity repository and may be nil.
// Caller must call Close when done.
func NewMemoryRepositories(merge storage.MergeFunc) (*MemoryRepositories, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	docs, err := NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	chunks, err := NewChunkRepository(backend)
	if err != nil {
		docs.Close()
		backend.Close()
		return nil, err
	}

	entities, err := NewEntityRepository(backend, merge)
	if err != nil {
		docs.Close()
		backend.Close()
		return nil, err
	}

	return &MemoryRepositories{
		Backend:     backend,
		Documents:   docs,
		Chunks:      chunks,
		Expansions:  NewExpansionCache(backend, 0),
		Entities:    entities,
		Checkpoints: NewCheckpointRepository(backend),
	}, nil
}

// Close closes the repositories and the backend.
func (m *MemoryRepositories) Close() error {
	m.Documents.Close()
	m.Chunks.Close()
	m.Entities.Close()
	return m.Backend.Close()
}
