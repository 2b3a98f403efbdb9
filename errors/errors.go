/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNotFound is returned when the target document does not exist
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when creating an entity whose id and partition key are taken
	ErrConflict = errors.New("entity already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrConditionFailed is returned when a caller-supplied condition does not hold
	ErrConditionFailed = errors.New("condition check failed")

	// ErrInvalidOperation is returned for operations the store refuses to perform
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrInvalidPatch is returned when a patch operation cannot be applied
	ErrInvalidPatch = errors.New("invalid patch")

	// ErrCancelled is returned when the caller's context ends the operation
	ErrCancelled = errors.New("operation cancelled")

	// ErrService is returned for failures surfaced by the database service
	ErrService = errors.New("service error")

	// ErrTransient marks service failures that may succeed on retry
	ErrTransient = errors.New("transient service error")

	// ErrNoSchema is returned when no schema is registered for a type
	ErrNoSchema = errors.New("no schema registered for type")
)

// NotFoundError represents an error when an entity is not found
type NotFoundError struct {
	Type string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with key %q not found", e.Type, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConflictError represents an error when an entity already exists
type ConflictError struct {
	Type string
	Key  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with key %q already exists", e.Type, e.Key)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ValidationError represents an input validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ConditionFailedError represents a failed conditional operation
type ConditionFailedError struct {
	Operation string
	Condition string
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition check failed for %s operation: %s", e.Operation, e.Condition)
}

func (e *ConditionFailedError) Is(target error) bool {
	return target == ErrConditionFailed
}

// InvalidOperationError represents an operation rejected by a store restriction
type InvalidOperationError struct {
	Operation string
	Reason    string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid %s operation: %s", e.Operation, e.Reason)
}

func (e *InvalidOperationError) Is(target error) bool {
	return target == ErrInvalidOperation
}

// InvalidPatchError identifies the patch operation that could not be applied.
// Index is -1 when the failure cannot be attributed to a single operation.
type InvalidPatchError struct {
	Index  int
	Path   string
	Reason string
}

func (e *InvalidPatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid patch: %s", e.Reason)
	}
	return fmt.Sprintf("invalid patch operation %d on path %q: %s", e.Index, e.Path, e.Reason)
}

func (e *InvalidPatchError) Is(target error) bool {
	return target == ErrInvalidPatch
}

// CancelledError wraps the context error that ended an operation
type CancelledError struct {
	Operation string
	Err       error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s cancelled: %v", e.Operation, e.Err)
}

func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// ServiceError wraps an error returned by the database service that the store
// does not interpret further.
type ServiceError struct {
	Operation string
	Transient bool
	Err       error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *ServiceError) Is(target error) bool {
	if target == ErrService {
		return true
	}
	return e.Transient && target == ErrTransient
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Helper functions for creating errors

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(entityType, key string) error {
	return &NotFoundError{Type: entityType, Key: key}
}

// NewConflictError creates a new ConflictError
func NewConflictError(entityType, key string) error {
	return &ConflictError{Type: entityType, Key: key}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewConditionFailedError creates a new ConditionFailedError
func NewConditionFailedError(operation, condition string) error {
	return &ConditionFailedError{Operation: operation, Condition: condition}
}

// NewInvalidOperationError creates a new InvalidOperationError
func NewInvalidOperationError(operation, reason string) error {
	return &InvalidOperationError{Operation: operation, Reason: reason}
}

// NewInvalidPatchError creates a new InvalidPatchError
func NewInvalidPatchError(index int, path, reason string) error {
	return &InvalidPatchError{Index: index, Path: path, Reason: reason}
}

// NewCancelledError creates a new CancelledError
func NewCancelledError(operation string, err error) error {
	return &CancelledError{Operation: operation, Err: err}
}

// NewServiceError creates a new ServiceError
func NewServiceError(operation string, transient bool, err error) error {
	return &ServiceError{Operation: operation, Transient: transient, Err: err}
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConditionFailed checks if an error is a condition failed error
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsInvalidPatch checks if an error is an invalid patch error
func IsInvalidPatch(err error) bool {
	return errors.Is(err, ErrInvalidPatch)
}

// IsCancelled checks if an error is a cancellation error
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsTransient checks if an error is a service error worth retrying
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
