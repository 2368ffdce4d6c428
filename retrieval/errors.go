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

package retrieval

import "errors"

var (
	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrEmbedderRequired is returned when a query embedder is not provided.
	ErrEmbedderRequired = errors.New("query embedder required")

	// ErrExpanderRequired is returned by RetrieveQuery when no expander is configured.
	ErrExpanderRequired = errors.New("query expander required")

	// ErrNoVariants is returned when every variant is blank.
	ErrNoVariants = errors.New("no query variants")

	// ErrAllVariantsFailed is returned when no variant could be embedded and searched.
	ErrAllVariantsFailed = errors.New("all query variants failed")
)
