package badger

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	return &ChunkRepository{
		backend: backend,
	}, nil
}

// Close releases resources. ChunkRepository has no resources to release.
func (r *ChunkRepository) Close() error {
	return nil
}

// ReplaceChunks swaps a document's chunks for a new segmentation.
// Very large documents are written across several transactions; none of
// the chunks are searchable until the document is indexed, so a partial
// write is only ever seen by a resuming worker, which replaces it again.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID core.ID, chunks []*core.Chunk) ([]*core.Chunk, error) {
	var stale [][]byte
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanKeys(tx, makeChunkPrefix(documentID), func(key []byte) error {
			stale = append(stale, key)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	for i, chunk := range chunks {
		chunk.DocumentId = documentID
		chunk.Sequence = i
		chunk.Id = core.ChunkIDFor(documentID, i)
		chunk.Indexed = false
	}

	err = r.backend.UpdateEach(len(stale)+len(chunks), func(tx *badger.Txn, i int) error {
		if i < len(stale) {
			return tx.Delete(stale[i])
		}
		chunk := chunks[i-len(stale)]
		value, err := storage.MarshalChunk(chunk)
		if err != nil {
			return err
		}
		return tx.Set(makeChunkKey(documentID, chunk.Sequence), value)
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// GetChunks returns a document's chunks in sequence order.
func (r *ChunkRepository) GetChunks(ctx context.Context, documentID core.ID) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.View(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, documentID)
		if err != nil {
			return err
		}
		indexed := doc != nil && doc.Status == core.StatusIndexed

		return scanPrefix(tx, makeChunkPrefix(documentID), func(key, val []byte) error {
			chunk, err := storage.UnmarshalChunk(val)
			if err != nil {
				return err
			}
			chunk.Indexed = indexed && chunk.Embedded()
			results = append(results, chunk)
			return nil
		})
	})
	return results, err
}

// SetVectors writes the vectors of one embedding batch.
// Each batch touches a disjoint set of chunks, so batches may land in any order.
func (r *ChunkRepository) SetVectors(ctx context.Context, documentID core.ID, vectors map[int][]float32) error {
	sequences := make([]int, 0, len(vectors))
	for seq := range vectors {
		sequences = append(sequences, seq)
	}
	slices.Sort(sequences)

	return r.backend.Update(func(tx *badger.Txn) error {
		for _, seq := range sequences {
			key := makeChunkKey(documentID, seq)
			val, err := getValue(tx, key)
			if err != nil {
				return err
			}
			if val == nil {
				return fmt.Errorf("%w: chunk %d of document %d", storage.ErrNotFound, seq, documentID)
			}
			chunk, err := storage.UnmarshalChunk(val)
			if err != nil {
				return err
			}

			chunk.Vector = vectors[seq]
			value, err := storage.MarshalChunk(chunk)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// SearchChunks scans every chunk of every indexed document and ranks by cosine distance.
func (r *ChunkRepository) SearchChunks(ctx context.Context, vector []float32, limit int) ([]core.ChunkHit, error) {
	if len(vector) == 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: search needs a vector and a positive limit", storage.ErrInvalidQuery)
	}

	var hits []core.ChunkHit
	err := r.backend.View(func(tx *badger.Txn) error {
		indexedDocs := make(map[core.ID]bool)
		return scanPrefix(tx, []byte(chunkPrefix), func(key, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk, err := storage.UnmarshalChunk(val)
			if err != nil {
				return err
			}
			if !chunk.Embedded() {
				return nil
			}

			indexed, seen := indexedDocs[chunk.DocumentId]
			if !seen {
				doc, err := readDocument(tx, chunk.DocumentId)
				if err != nil {
					return err
				}
				indexed = doc != nil && doc.Status == core.StatusIndexed
				indexedDocs[chunk.DocumentId] = indexed
			}
			if !indexed {
				return nil
			}

			chunk.Indexed = true
			hits = append(hits, core.ChunkHit{
				Chunk:    chunk,
				Distance: cosineDistance(vector, chunk.Vector),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(hits, func(a, b core.ChunkHit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.Id, b.Chunk.Id)
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// CountChunks counts stored chunks and those searchable through an indexed document.
func (r *ChunkRepository) CountChunks(ctx context.Context) (core.ChunkCounts, error) {
	var counts core.ChunkCounts
	err := r.backend.View(func(tx *badger.Txn) error {
		indexedDocs := make(map[core.ID]bool)
		return scanPrefix(tx, []byte(chunkPrefix), func(key, val []byte) error {
			chunk, err := storage.UnmarshalChunk(val)
			if err != nil {
				return err
			}
			counts.Total++

			indexed, seen := indexedDocs[chunk.DocumentId]
			if !seen {
				doc, err := readDocument(tx, chunk.DocumentId)
				if err != nil {
					return err
				}
				indexed = doc != nil && doc.Status == core.StatusIndexed
				indexedDocs[chunk.DocumentId] = indexed
			}
			if indexed && chunk.Embedded() {
				counts.Indexed++
			}
			return nil
		})
	})
	return counts, err
}
