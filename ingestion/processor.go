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

package ingestion

import (
	"context"

	"github.com/poiesic/lexis/core"
)

// TextExtractor converts raw document bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, raw []byte, contentType core.ContentType) (string, error)
}

// BatchEmbedder embeds one batch of texts, all or nothing.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	BatchSize() int
}

// job carries one claimed document through the stages.
type job struct {
	doc    *core.Document
	text   string
	loaded bool
	chunks []*core.Chunk
}

// processor is an internal interface for one stage of the state machine.
// A stage runs while the document is in its status and, on success, moves
// the document to the next status.
type processor interface {
	// status returns the document status this stage handles.
	status() core.DocumentStatus

	// process performs the stage's work and transitions job.doc.
	process(ctx context.Context, j *job) error
}
