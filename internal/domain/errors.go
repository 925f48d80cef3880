package domain

import "fmt"

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

// Is reports whether target is a DomainError with the same code and message,
// so a sentinel still matches after it has been wrapped with a cause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
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

// WithCause returns a copy of a sentinel error carrying err as its cause.
func WithCause(sentinel *DomainError, err error) *DomainError {
	return NewDomainErrorWithCause(sentinel.Code, sentinel.Message, err)
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodeIncompatible     = "INCOMPATIBLE_INDEX"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Ingestion errors
var (
	ErrEmptyDocument        = NewDomainError(ErrCodeValidation, "document body is empty")
	ErrMissingSourceURL     = NewDomainError(ErrCodeValidation, "document has no source url")
	ErrInvalidChunkConfig   = NewDomainError(ErrCodeValidation, "invalid chunk configuration")
	ErrEmbeddingUnavailable = NewDomainError(ErrCodeUnavailable, "embedding service unavailable")
	ErrNothingToIndex       = NewDomainError(ErrCodeValidation, "no document produced any chunk")
)

// Index errors
var (
	ErrIndexDimensionMismatch = NewDomainError(ErrCodeIncompatible, "index dimension does not match embedder")
	ErrIndexModelMismatch     = NewDomainError(ErrCodeIncompatible, "index was built with a different embedding model")
	ErrIndexNotFound          = NewDomainError(ErrCodeNotFound, "no published index")
	ErrIndexNotLoaded         = NewDomainError(ErrCodeUnavailable, "no index loaded")
	ErrIndexCorrupt           = NewDomainError(ErrCodeInternalError, "index bundle is corrupt")
	ErrDuplicateChunk         = NewDomainError(ErrCodeInvalidOperation, "duplicate chunk id")
)

// Query errors
var (
	ErrEmptyQuestion         = NewDomainError(ErrCodeValidation, "question is empty")
	ErrGenerationUnavailable = NewDomainError(ErrCodeUnavailable, "generation service unavailable")
	ErrStorageOperationFail  = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
