package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeProvider represents embedding/reasoning provider errors
	ErrorTypeProvider ErrorType = "provider"
	// ErrorTypeValidation represents malformed extraction payloads
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeIntegrity represents graph integrity violations
	ErrorTypeIntegrity ErrorType = "integrity"
	// ErrorTypeConcurrency represents lock acquisition conflicts
	ErrorTypeConcurrency ErrorType = "concurrency"
	// ErrorTypeNotFound represents missing nodes, edges or documents
	ErrorTypeNotFound ErrorType = "not_found"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error
}

func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// ProviderError is returned when an external provider call fails.
// Transient errors (timeouts, rate limits) are retried by callers; the
// component degrades after bounded attempts instead of failing hard.
type ProviderError struct {
	*BaseError
	Provider  string
	Transient bool
}

func NewProviderError(provider, message string, transient bool, err error) *ProviderError {
	return &ProviderError{
		BaseError: NewBaseError(ErrorTypeProvider, fmt.Sprintf("%s: %s", provider, message), err),
		Provider:  provider,
		Transient: transient,
	}
}

// ValidationError is returned for malformed extraction payloads.
// The offending slice is dropped and logged; ingestion continues.
type ValidationError struct {
	*BaseError
	Field string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		BaseError: NewBaseError(ErrorTypeValidation, message, nil),
		Field:     field,
	}
}

// IntegrityError is returned when a write would break a graph invariant,
// e.g. an edge referencing a missing or merged-away node. It aborts the
// enclosing fusion transaction and is never silently repaired.
type IntegrityError struct {
	*BaseError
	NodeID int64
	EdgeID int64
}

func NewIntegrityError(message string, nodeID, edgeID int64) *IntegrityError {
	return &IntegrityError{
		BaseError: NewBaseError(ErrorTypeIntegrity, message, nil),
		NodeID:    nodeID,
		EdgeID:    edgeID,
	}
}

// ConflictError is returned when the per-owner mutation lock cannot be
// acquired. Callers retry or queue.
type ConflictError struct {
	*BaseError
	OwnerID string
}

func NewConflictError(ownerID string) *ConflictError {
	return &ConflictError{
		BaseError: NewBaseError(ErrorTypeConcurrency, fmt.Sprintf("owner %s has a mutation in flight", ownerID), nil),
		OwnerID:   ownerID,
	}
}

// NotFoundError is returned for lookups of missing entities
type NotFoundError struct {
	*BaseError
	Kind string
	ID   int64
}

func NewNotFoundError(kind string, id int64) *NotFoundError {
	return &NotFoundError{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s %d not found", kind, id), nil),
		Kind:      kind,
		ID:        id,
	}
}

// IsTransient reports whether err is a retryable provider error
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsIntegrity reports whether err is an integrity violation
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// IsConflict reports whether err is a lock conflict
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a missing-entity error
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
