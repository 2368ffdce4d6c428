package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
	now     func() time.Time
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	idSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}

	return &DocumentRepository{
		backend: backend,
		idSeq:   idSeq,
		now:     func() time.Time { return time.Now() },
	}, nil
}

// Close releases the ID sequence.
func (r *DocumentRepository) Close() error {
	return r.idSeq.Release()
}

// CreateDocument stores a new pending document and its raw content.
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *core.Document, raw []byte) (*core.Document, error) {
	nextID, err := r.idSeq.Next()
	if err != nil {
		return nil, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if nextID == 0 {
		if nextID, err = r.idSeq.Next(); err != nil {
			return nil, err
		}
	}

	doc.Id = core.ID(nextID)
	doc.Status = core.StatusPending
	doc.Size = len(raw)
	doc.Error = ""
	doc.FailureKind = ""
	doc.ProcessedAt = nil
	doc.CreatedAt = storage.Timestamp(r.now())
	doc.UpdatedAt = doc.CreatedAt

	err = r.backend.Update(func(tx *badger.Txn) error {
		if err := writeDocument(tx, doc); err != nil {
			return err
		}
		if err := tx.Set(makeStatusKey(doc.Status, doc.Id), storage.MarshalID(doc.Id)); err != nil {
			return err
		}
		return tx.Set(makeDocumentRawKey(doc.Id), raw)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument retrieves a document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

// GetContent retrieves the raw bytes of a document.
func (r *DocumentRepository) GetContent(ctx context.Context, id core.ID) ([]byte, error) {
	var raw []byte
	err := r.backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentRawKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	return raw, err
}

// ListByStatus walks the status index, which is ordered by ID and so by creation.
func (r *DocumentRepository) ListByStatus(ctx context.Context, status core.DocumentStatus, limit int) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		var ids []core.ID
		err := scanKeys(tx, makeStatusPrefix(status), func(key []byte) error {
			ids = append(ids, idFromStatusKey(key))
			if limit > 0 && len(ids) >= limit {
				return errStopScan
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, id := range ids {
			doc, err := readDocument(tx, id)
			if err != nil {
				return err
			}
			if doc != nil {
				results = append(results, doc)
			}
		}
		return nil
	})
	return results, err
}

// Claim performs the compare-and-swap that gives one worker a document.
func (r *DocumentRepository) Claim(ctx context.Context, id core.ID, status core.DocumentStatus, updatedAt time.Time) (*core.Document, error) {
	if status != core.StatusPending && !status.InProgress() {
		return nil, fmt.Errorf("%w: cannot claim a %s document", storage.ErrInvalidTransition, status)
	}

	var claimed *core.Document
	err := r.backend.Update(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if doc.Status != status || !doc.UpdatedAt.Equal(updatedAt) {
			return fmt.Errorf("%w: document %d is %s", storage.ErrConflict, id, doc.Status)
		}

		next := status
		if status == core.StatusPending {
			next = core.StatusParsing
		}
		if err := r.move(tx, doc, next); err != nil {
			return err
		}
		claimed = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Transition moves a document along the state machine if it is still in from.
// Moving to indexed requires every chunk to carry a vector and stamps ProcessedAt.
func (r *DocumentRepository) Transition(ctx context.Context, id core.ID, from, to core.DocumentStatus, mutate func(*core.Document)) (*core.Document, error) {
	if !core.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, from, to)
	}

	var updated *core.Document
	err := r.backend.Update(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if doc.Status != from {
			return fmt.Errorf("%w: document %d is %s, expected %s", storage.ErrConflict, id, doc.Status, from)
		}

		if to == core.StatusIndexed {
			if err := requireVectors(tx, id); err != nil {
				return err
			}
		}
		if mutate != nil {
			mutate(doc)
		}
		if err := r.move(tx, doc, to); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// move rewrites the document with a new status and keeps the status index in step.
func (r *DocumentRepository) move(tx *badger.Txn, doc *core.Document, to core.DocumentStatus) error {
	from := doc.Status
	doc.Status = to
	doc.UpdatedAt = storage.Timestamp(r.now())

	switch to {
	case core.StatusIndexed:
		processed := doc.UpdatedAt
		doc.ProcessedAt = &processed
		doc.Error = ""
		doc.FailureKind = ""
	case core.StatusPending:
		doc.Error = ""
		doc.FailureKind = ""
		doc.ProcessedAt = nil
	}

	if err := writeDocument(tx, doc); err != nil {
		return err
	}
	if from != to {
		if err := tx.Delete(makeStatusKey(from, doc.Id)); err != nil {
			return err
		}
		if err := tx.Set(makeStatusKey(to, doc.Id), storage.MarshalID(doc.Id)); err != nil {
			return err
		}
	}
	return nil
}

// CountDocuments counts status index entries.
func (r *DocumentRepository) CountDocuments(ctx context.Context) (core.DocumentCounts, error) {
	var counts core.DocumentCounts
	err := r.backend.View(func(tx *badger.Txn) error {
		for _, status := range core.AllStatuses {
			n := 0
			err := scanKeys(tx, makeStatusPrefix(status), func(key []byte) error {
				n++
				return nil
			})
			if err != nil {
				return err
			}

			counts.Total += n
			switch status {
			case core.StatusPending:
				counts.Pending = n
			case core.StatusParsing:
				counts.Parsing = n
			case core.StatusChunking:
				counts.Chunking = n
			case core.StatusEmbedding:
				counts.Embedding = n
			case core.StatusIndexed:
				counts.Indexed = n
			case core.StatusFailed:
				counts.Failed = n
			}
		}
		counts.Processing = counts.Parsing + counts.Chunking + counts.Embedding
		return nil
	})
	return counts, err
}

// DeleteDocument removes a document together with everything it owns.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id core.ID) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}

		var chunkKeys [][]byte
		err = scanKeys(tx, makeChunkPrefix(id), func(key []byte) error {
			chunkKeys = append(chunkKeys, key)
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range chunkKeys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}

		if err := tx.Delete(makeStatusKey(doc.Status, id)); err != nil {
			return err
		}
		if err := tx.Delete(makeDocumentRawKey(id)); err != nil {
			return err
		}
		return tx.Delete(makeDocumentKey(id))
	})
}

// Helper methods

// requireVectors fails if any chunk of the document is missing its vector.
func requireVectors(tx *badger.Txn, documentID core.ID) error {
	found := 0
	err := scanPrefix(tx, makeChunkPrefix(documentID), func(key, val []byte) error {
		chunk, err := storage.UnmarshalChunk(val)
		if err != nil {
			return err
		}
		if !chunk.Embedded() {
			return fmt.Errorf("%w: chunk %d of document %d", storage.ErrNotEmbedded, chunk.Sequence, documentID)
		}
		found++
		return nil
	})
	if err != nil {
		return err
	}
	if found == 0 {
		return fmt.Errorf("%w: document %d has no chunks", storage.ErrNotEmbedded, documentID)
	}
	return nil
}

// readDocument reads a document, returning nil if it doesn't exist.
func readDocument(tx *badger.Txn, id core.ID) (*core.Document, error) {
	val, err := getValue(tx, makeDocumentKey(id))
	if err != nil || val == nil {
		return nil, err
	}
	return storage.UnmarshalDocument(val)
}

func writeDocument(tx *badger.Txn, doc *core.Document) error {
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}
	return tx.Set(makeDocumentKey(doc.Id), value)
}
