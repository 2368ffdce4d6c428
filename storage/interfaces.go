package storage

import (
	"context"
	"time"

	"github.com/poiesic/lexis/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close releases resources held by the repository.
	Close() error
}

// DocumentRepository stores documents, their raw content, and their processing status.
type DocumentRepository interface {
	Repository

	// CreateDocument assigns a sequential ID, sets timestamps and the pending
	// status, and stores the document together with its raw content.
	CreateDocument(ctx context.Context, doc *core.Document, raw []byte) (*core.Document, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// GetContent retrieves the raw bytes of a document.
	// Returns ErrNotFound if the document doesn't exist.
	GetContent(ctx context.Context, id core.ID) ([]byte, error)

	// ListByStatus returns documents in the given status, oldest first.
	// A limit <= 0 returns every match.
	ListByStatus(ctx context.Context, status core.DocumentStatus, limit int) ([]*core.Document, error)

	// Claim atomically takes ownership of a document that is in status and was
	// last updated at updatedAt. A pending document moves to parsing; a document
	// in an intermediate status keeps it and only has UpdatedAt refreshed.
	// Returns ErrConflict if the document changed or another caller won.
	Claim(ctx context.Context, id core.ID, status core.DocumentStatus, updatedAt time.Time) (*core.Document, error)

	// Transition moves a document from one status to another if it is still in
	// from and the state machine allows the move. mutate, if not nil, is applied
	// to the document before it is written.
	// Returns ErrConflict if the document is no longer in from.
	Transition(ctx context.Context, id core.ID, from, to core.DocumentStatus, mutate func(*core.Document)) (*core.Document, error)

	// CountDocuments returns document totals per status.
	CountDocuments(ctx context.Context) (core.DocumentCounts, error)

	// DeleteDocument removes a document, its raw content and its chunks.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error
}

// ChunkRepository stores chunks and their vectors, and searches them.
//
// A chunk is reported Indexed when it has a vector and its document is
// indexed, so finishing a document marks all its chunks at once.
type ChunkRepository interface {
	Repository

	// ReplaceChunks deletes any chunks stored for the document and stores the
	// given ones. Chunk IDs are derived from document ID and sequence.
	ReplaceChunks(ctx context.Context, documentID core.ID, chunks []*core.Chunk) ([]*core.Chunk, error)

	// GetChunks returns a document's chunks in sequence order.
	GetChunks(ctx context.Context, documentID core.ID) ([]*core.Chunk, error)

	// SetVectors stores vectors for the given chunks in one transaction.
	// Returns ErrNotFound if any chunk doesn't exist.
	SetVectors(ctx context.Context, documentID core.ID, vectors map[int][]float32) error

	// SearchChunks returns up to limit indexed chunks nearest to vector by
	// cosine distance, closest first, ties broken by chunk ID.
	SearchChunks(ctx context.Context, vector []float32, limit int) ([]core.ChunkHit, error)

	// CountChunks returns chunk totals.
	CountChunks(ctx context.Context) (core.ChunkCounts, error)
}

// ExpansionCache stores query expansions keyed by normalized query hash.
// The cache is append-only: putting an existing hash keeps the first entry.
type ExpansionCache interface {
	// GetExpansion returns ErrNotFound on a miss.
	GetExpansion(ctx context.Context, hash string) (*core.ExpansionEntry, error)

	PutExpansion(ctx context.Context, entry *core.ExpansionEntry) error
}

// MergeFunc folds an incoming resolved entity into a stored one with the same key.
type MergeFunc func(stored, incoming core.Entity) core.Entity

// EntityRepository stores resolved entities with a (type, key) index.
type EntityRepository interface {
	Repository

	// SaveEntities stores entities. An entity whose (type, key) already exists
	// is merged into the stored one instead of replacing it.
	SaveEntities(ctx context.Context, entities ...*core.Entity) ([]*core.Entity, error)

	// GetEntity retrieves an entity by ID.
	// Returns ErrNotFound if the entity doesn't exist.
	GetEntity(ctx context.Context, id core.ID) (*core.Entity, error)

	// FindEntity looks an entity up by type and normalized key.
	// Returns ErrNotFound if no matching entity exists.
	FindEntity(ctx context.Context, entityType core.EntityType, key string) (*core.Entity, error)

	// ListEntities returns entities of a type, or all entities when entityType
	// is empty, sorted by (type, key).
	ListEntities(ctx context.Context, entityType core.EntityType) ([]*core.Entity, error)
}

// CheckpointRepository persists the progress of scheduled workers.
type CheckpointRepository interface {
	// SaveCheckpoint stores the checkpoint for its worker, replacing any previous one.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint returns nil, nil if the worker has never saved a checkpoint.
	LoadCheckpoint(ctx context.Context, worker string) (*core.Checkpoint, error)
}
