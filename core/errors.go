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


package core

import (
	"errors"
	"fmt"
)

// Input validation errors. Surfaced to the caller immediately and never retried.
var (
	// ErrValidation is the parent of every enqueue validation failure.
	ErrValidation = errors.New("validation error")

	// ErrPayloadTooLarge indicates raw content exceeds the size cap.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrUnsupportedContentType indicates a content type the extractor cannot handle.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrUnsupportedSourceType indicates an unknown document source.
	ErrUnsupportedSourceType = errors.New("unsupported source type")

	// ErrEmptyLabel indicates an extracted entity without a label.
	ErrEmptyLabel = errors.New("entity label cannot be empty")

	// ErrInvalidEntityType indicates an entity type outside the ontology.
	ErrInvalidEntityType = errors.New("invalid entity type")

	// ErrInvalidConfidence indicates a confidence outside 0-100.
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 100")
)

// Processing errors.
var (
	// ErrExtraction indicates the document produced no usable text or no chunks.
	// Content errors are permanent: the same bytes fail the same way.
	ErrExtraction = errors.New("extraction error")

	// ErrNoExtractableText indicates extraction yielded empty or whitespace-only text.
	ErrNoExtractableText = errors.New("no extractable text")

	// ErrNoChunks indicates chunking produced zero segments.
	ErrNoChunks = errors.New("document produced no chunks")

	// ErrEmbedding indicates the embedding stage failed after its retry budget.
	ErrEmbedding = errors.New("embedding error")

	// ErrConfiguration indicates invalid pipeline settings, such as overlap >= chunk size.
	ErrConfiguration = errors.New("configuration error")
)

// Provider errors. Provider adapters wrap their failures in one of these so
// the retry policy can pick a strategy.
var (
	// ErrRateLimit indicates the provider throttled the request.
	ErrRateLimit = errors.New("rate limited")

	// ErrTimeout indicates the provider did not answer in time.
	ErrTimeout = errors.New("provider timeout")

	// ErrInvalidResponse indicates a malformed or inconsistent provider response.
	ErrInvalidResponse = errors.New("invalid provider response")

	// ErrExhaustedRetries indicates every attempt of a retried call failed.
	ErrExhaustedRetries = errors.New("exhausted retries")
)

// ExhaustedRetriesError carries the last failure of a retried provider call.
// It matches both ErrExhaustedRetries and the last error with errors.Is.
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("exhausted %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() []error {
	return []error{ErrExhaustedRetries, e.Last}
}

// IsPermanent reports whether err is a content failure that retrying cannot fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrExtraction)
}

// ErrorKind returns a short human-readable name for the most specific known error class.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExtraction):
		return "ExtractionError"
	case errors.Is(err, ErrExhaustedRetries):
		return "ExhaustedRetriesError"
	case errors.Is(err, ErrEmbedding):
		return "EmbeddingError"
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, ErrRateLimit):
		return "RateLimitError"
	case errors.Is(err, ErrTimeout):
		return "TimeoutError"
	case errors.Is(err, ErrInvalidResponse):
		return "InvalidResponseError"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	default:
		return "Error"
	}
}
