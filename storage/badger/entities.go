package badger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/storage"
)

// EntityRepository implements storage.EntityRepository for BadgerDB.
type EntityRepository struct {
	backend *Backend
	merge   storage.MergeFunc
}

var _ storage.EntityRepository = (*EntityRepository)(nil)

// NewEntityRepository creates a new EntityRepository.
// merge folds a newly saved entity into a stored one with the same (type, key);
// when nil the incoming entity replaces the stored one.
func NewEntityRepository(backend *Backend, merge storage.MergeFunc) (*EntityRepository, error) {
	return &EntityRepository{
		backend: backend,
		merge:   merge,
	}, nil
}

// Close releases resources. EntityRepository has no resources to release.
func (r *EntityRepository) Close() error {
	return nil
}

// SaveEntities stores entities, merging each with any stored entity of the same (type, key).
func (r *EntityRepository) SaveEntities(ctx context.Context, entities ...*core.Entity) ([]*core.Entity, error) {
	for _, entity := range entities {
		if entity.Type == "" || entity.Key == "" {
			return nil, fmt.Errorf("%w: entity needs a type and a key", storage.ErrInvalidQuery)
		}
	}

	saved := make([]*core.Entity, len(entities))
	err := r.backend.Update(func(tx *badger.Txn) error {
		for i, entity := range entities {
			tupleKey := makeEntityTupleKey(entity.Type, entity.Key)

			// Check the tuple index for an existing entity
			idBytes, err := getValue(tx, tupleKey)
			if err != nil {
				return err
			}

			result := *entity
			if idBytes != nil {
				id, err := storage.UnmarshalID(idBytes)
				if err != nil {
					return err
				}
				stored, err := readEntity(tx, id)
				if err != nil {
					return err
				}
				if stored != nil && r.merge != nil {
					result = r.merge(*stored, *entity)
				}
			}

			result.Id = core.IDFromContent(result.Tuple())
			result.UpdatedAt = storage.Timestamp(time.Now())

			value, err := storage.MarshalEntity(&result)
			if err != nil {
				return err
			}
			if err := tx.Set(makeEntityKey(result.Id), value); err != nil {
				return err
			}
			if err := tx.Set(tupleKey, storage.MarshalID(result.Id)); err != nil {
				return err
			}
			saved[i] = &result
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// GetEntity retrieves a single entity by ID.
func (r *EntityRepository) GetEntity(ctx context.Context, id core.ID) (*core.Entity, error) {
	var result *core.Entity
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		result, err = readEntity(tx, id)
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

// FindEntity looks an entity up through the tuple index.
func (r *EntityRepository) FindEntity(ctx context.Context, entityType core.EntityType, key string) (*core.Entity, error) {
	var result *core.Entity
	err := r.backend.View(func(tx *badger.Txn) error {
		idBytes, err := getValue(tx, makeEntityTupleKey(entityType, key))
		if err != nil {
			return err
		}
		if idBytes == nil {
			return storage.ErrNotFound
		}
		id, err := storage.UnmarshalID(idBytes)
		if err != nil {
			return err
		}
		result, err = readEntity(tx, id)
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

// ListEntities walks the tuple index of one type, or of every type when entityType is empty.
func (r *EntityRepository) ListEntities(ctx context.Context, entityType core.EntityType) ([]*core.Entity, error) {
	prefix := []byte(entityTuplePrefix)
	if entityType != "" {
		prefix = makeEntityTuplePrefix(entityType)
	}

	var results []*core.Entity
	err := r.backend.View(func(tx *badger.Txn) error {
		var ids []core.ID
		err := scanPrefix(tx, prefix, func(key, val []byte) error {
			id, err := storage.UnmarshalID(val)
			if err != nil {
				return err
			}
			ids = append(ids, id)
			return nil
		})
		if err != nil {
			return err
		}

		for _, id := range ids {
			entity, err := readEntity(tx, id)
			if err != nil {
				return err
			}
			if entity != nil {
				results = append(results, entity)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Index order is by type then key, but a key containing ':' can sort
	// across type boundaries, so order explicitly.
	slices.SortFunc(results, func(a, b *core.Entity) int {
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return results, nil
}

// readEntity reads an entity, returning nil if it doesn't exist.
func readEntity(tx *badger.Txn, id core.ID) (*core.Entity, error) {
	val, err := getValue(tx, makeEntityKey(id))
	if err != nil || val == nil {
		return nil, err
	}
	return storage.UnmarshalEntity(val)
}
