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
	"context"

	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/embedding"
	"github.com/poiesic/lexis/storage"
)

const (
	// DefaultBatchSize is the default number of documents handed to the callback at once
	DefaultBatchSize = 10
)

// DocumentIterator walks indexed documents in batches.
type DocumentIterator struct {
	documents storage.DocumentRepository
	batchSize int
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents per batch; values <= 0 use DefaultBatchSize
func NewDocumentIterator(documents storage.DocumentRepository, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &DocumentIterator{
		documents: documents,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each batch of indexed documents, oldest first.
// Iteration stops on the first error from fn or when ctx is done.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]*core.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	docs, err := it.documents.ListByStatus(ctx, core.StatusIndexed, 0)
	if err != nil {
		return err
	}

	for _, batch := range embedding.Split(docs, it.batchSize) {
		if err := fn(batch); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
