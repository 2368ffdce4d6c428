package core

import (
	"fmt"
	"mime"
	"strings"
)

// MaxDocumentSize is the hard cap on raw document content, in bytes.
const MaxDocumentSize = 50 * 1024 * 1024

var contentTypeAliases = map[string]ContentType{
	"pdf":             ContentTypePDF,
	"application/pdf": ContentTypePDF,
	"text/plain":      ContentTypeText,
	"text":            ContentTypeText,
	"text/html":       ContentTypeHTML,
	"text/htm":        ContentTypeHTML,
	"html":            ContentTypeHTML,
}

// ParseContentType maps a declared content type onto a supported ContentType.
// MIME parameters such as charset are ignored.
func ParseContentType(declared string) (ContentType, error) {
	value := strings.ToLower(strings.TrimSpace(declared))
	if mediaType, _, err := mime.ParseMediaType(value); err == nil {
		value = mediaType
	}
	if ct, ok := contentTypeAliases[value]; ok {
		return ct, nil
	}
	return "", fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnsupportedContentType, declared)
}

// ValidateSourceType checks the source tag of a document.
// An empty source defaults to upload.
func ValidateSourceType(source SourceType) (SourceType, error) {
	switch source {
	case "":
		return SourceUpload, nil
	case SourceUpload, SourcePaste, SourceWebSearch, SourceKnowledgeBase:
		return source, nil
	}
	return "", fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnsupportedSourceType, source)
}

// ValidatePayload enforces the document size cap.
func ValidatePayload(raw []byte) error {
	if len(raw) > MaxDocumentSize {
		return fmt.Errorf("%w: %w: %.2fMB exceeds limit of %dMB", ErrValidation, ErrPayloadTooLarge,
			float64(len(raw))/1024/1024, MaxDocumentSize/1024/1024)
	}
	return nil
}

// ValidateExtractedEntity validates a raw entity before resolution.
//
// Validation rules:
//   - Label must contain a non-space character
//   - Type must be one of actor, policy, outcome, risk
//   - Confidence must be between 0 and 100
func ValidateExtractedEntity(entity *ExtractedEntity) error {
	if entity == nil {
		return fmt.Errorf("%w: entity is nil", ErrValidation)
	}
	if strings.TrimSpace(entity.Label) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyLabel)
	}
	switch entity.Type {
	case EntityActor, EntityPolicy, EntityOutcome, EntityRisk:
	default:
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidEntityType, entity.Type)
	}
	if entity.Confidence < 0 || entity.Confidence > 100 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidConfidence)
	}
	return nil
}
