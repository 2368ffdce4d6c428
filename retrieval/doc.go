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

// Package retrieval ranks chunks across several phrasings of one query.
//
// The Aggregator embeds each query variant and searches the chunk store with
// it, in parallel. Chunks are then merged by ID and ranked by:
//   - HitCount: how many variants retrieved the chunk, descending
//   - BestDistance: the closest cosine distance seen, ascending
//   - chunk ID, ascending
//
// A chunk found by many phrasings beats one found by a single phrasing, even
// a very close one. Variants that fail or run past their deadline are
// reported and skipped; only a call where every variant fails is an error.
package retrieval
