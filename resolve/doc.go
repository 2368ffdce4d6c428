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

// Package resolve deduplicates extracted entities.
//
// Raw entities from many chunks are grouped by type and a normalized label.
// Known abbreviations of common actors and policies ("US", "the PRC",
// "Economic Sanctions") are folded onto one canonical name first. Each group
// becomes one resolved entity whose confidence is boosted by how many raw
// entities corroborate it, and whose provenance keeps every supporting quote.
//
// Resolution is order independent: any permutation of the same input
// produces the same entities with the same confidences.
package resolve
