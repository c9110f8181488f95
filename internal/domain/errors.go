package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is(err, ErrIndexUnavailable) matches wrapped instances too.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeLoad             = "LOAD_ERROR"
	ErrCodeEmbedding        = "EMBEDDING_ERROR"
	ErrCodeEmptyCorpus      = "EMPTY_CORPUS"
	ErrCodeIndexUnavailable = "INDEX_UNAVAILABLE"
	ErrCodeGeneration       = "GENERATION_ERROR"
)

// Validation errors
var (
	ErrInvalidChunkConfig = NewDomainError(ErrCodeValidation, "invalid chunk configuration")
)

// Not found errors
var (
	ErrChunkNotFound    = NewDomainError(ErrCodeNotFound, "chunk not found")
	ErrBuildRunNotFound = NewDomainError(ErrCodeNotFound, "no build run recorded")
)

// Pipeline errors
var (
	ErrEmptyCorpus      = NewDomainError(ErrCodeEmptyCorpus, "source yielded no documents")
	ErrIndexUnavailable = NewDomainError(ErrCodeIndexUnavailable, "vector index is not available")
	ErrLoad             = NewDomainError(ErrCodeLoad, "failed to load document")
	ErrEmbedding        = NewDomainError(ErrCodeEmbedding, "embedding provider failed")
	ErrGeneration       = NewDomainError(ErrCodeGeneration, "text generation failed")
)

// NewLoadError wraps a per-document load failure.
func NewLoadError(source string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeLoad, fmt.Sprintf("failed to load %s", source), err)
}

// NewEmbeddingError wraps an embedding provider failure.
func NewEmbeddingError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeEmbedding, "embedding provider failed", err)
}

// NewGenerationError wraps a text generation failure.
func NewGenerationError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeGeneration, "text generation failed", err)
}

// NewValidationError creates a validation error with a specific message.
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrCodeValidation, message)
}

// ErrorCode returns the code of the first DomainError in err's chain, or "".
func ErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}
