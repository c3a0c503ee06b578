package knowledge

import (
	"errors"
	"fmt"
)

// ErrAlreadyExists marks the dedup outcome: byte-identical content was
// ingested before. Callers must treat it as success, not failure.
var ErrAlreadyExists = errors.New("knowledge: item already exists")

// ErrNotFound marks a missing item or chunk in the relational store.
var ErrNotFound = errors.New("knowledge: not found")

// ExtractionError reports unsupported or corrupt input. It is recorded on the
// affected item and never fails sibling items in the same batch.
type ExtractionError struct {
	MimeType string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("knowledge: extraction failed for %q: %v", e.MimeType, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingError reports an erroring or empty embedding call. It is recorded
// as Failed status on the affected item.
type EmbeddingError struct {
	Model string
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("knowledge: embedding failed for model %q: %v", e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// ConfigError signals a configuration defect, such as no determinable
// embedding model for a content/collection combination. Unlike the transient
// categories it propagates as a hard failure.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "knowledge: configuration error: " + e.Reason
}

// NewConfigError builds a ConfigError with a formatted reason.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a configuration defect.
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}
