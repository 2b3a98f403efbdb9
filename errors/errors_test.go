/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("User", "tenant1/123")

	// Test error message
	expected := `User with key "tenant1/123" not found`
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}

	// Test Is method
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}

	// Test helper function
	if !IsNotFound(err) {
		t.Error("IsNotFound should return true for NotFoundError")
	}
}

func TestConflictError(t *testing.T) {
	err := NewConflictError("Product", "ABC")

	expected := `Product with key "ABC" already exists`
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}

	if !errors.Is(err, ErrConflict) {
		t.Error("ConflictError should match ErrConflict")
	}

	if !IsConflict(err) {
		t.Error("IsConflict should return true for ConflictError")
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		message  string
		expected string
	}{
		{
			name:     "with field",
			field:    "email",
			message:  "invalid format",
			expected: `validation failed for field "email": invalid format`,
		},
		{
			name:     "without field",
			field:    "",
			message:  "missing required fields",
			expected: "validation failed: missing required fields",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.field, tt.message)

			if err.Error() != tt.expected {
				t.Errorf("Expected error message %q, got %q", tt.expected, err.Error())
			}

			if !errors.Is(err, ErrInvalidInput) {
				t.Error("ValidationError should match ErrInvalidInput")
			}

			if !IsValidationError(err) {
				t.Error("IsValidationError should return true for ValidationError")
			}
		})
	}
}

func TestConditionFailedError(t *testing.T) {
	err := NewConditionFailedError("upsert", "version = :oldVersion")

	expected := "condition check failed for upsert operation: version = :oldVersion"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}

	if !IsConditionFailed(err) {
		t.Error("IsConditionFailed should return true for ConditionFailedError")
	}
}

func TestInvalidOperationError(t *testing.T) {
	err := NewInvalidOperationError("replace", "id equals partition key")

	expected := "invalid replace operation: id equals partition key"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}

	if !IsInvalidOperation(err) {
		t.Error("IsInvalidOperation should return true for InvalidOperationError")
	}
}

func TestInvalidPatchError(t *testing.T) {
	t.Run("WithIndex", func(t *testing.T) {
		err := NewInvalidPatchError(2, "score", "target does not exist")
		expected := `invalid patch operation 2 on path "score": target does not exist`
		if err.Error() != expected {
			t.Errorf("Expected error message %q, got %q", expected, err.Error())
		}
		if !IsInvalidPatch(err) {
			t.Error("IsInvalidPatch should return true for InvalidPatchError")
		}
	})

	t.Run("WithoutIndex", func(t *testing.T) {
		err := NewInvalidPatchError(-1, "", "no operations")
		if err.Error() != "invalid patch: no operations" {
			t.Errorf("Unexpected error message %q", err.Error())
		}
	})
}

func TestCancelledError(t *testing.T) {
	err := NewCancelledError("get", context.Canceled)

	if !IsCancelled(err) {
		t.Error("IsCancelled should return true for CancelledError")
	}

	// The context error stays reachable through Unwrap
	if !errors.Is(err, context.Canceled) {
		t.Error("CancelledError should unwrap to context.Canceled")
	}
}

func TestServiceError(t *testing.T) {
	cause := errors.New("throttled")

	t.Run("Transient", func(t *testing.T) {
		err := NewServiceError("put", true, cause)
		if !errors.Is(err, ErrService) {
			t.Error("ServiceError should match ErrService")
		}
		if !IsTransient(err) {
			t.Error("transient ServiceError should match ErrTransient")
		}
		if !errors.Is(err, cause) {
			t.Error("ServiceError should unwrap to its cause")
		}
	})

	t.Run("Permanent", func(t *testing.T) {
		err := NewServiceError("put", false, cause)
		if IsTransient(err) {
			t.Error("permanent ServiceError should not match ErrTransient")
		}
	})
}

func TestErrorWrapping(t *testing.T) {
	// Test that wrapped errors still match
	original := NewNotFoundError("User", "123")
	wrapped := fmt.Errorf("database operation failed: %w", original)

	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("Wrapped NotFoundError should still match ErrNotFound")
	}

	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should work with wrapped errors")
	}
}

func TestSentinelErrors(t *testing.T) {
	// Ensure sentinel errors are distinct
	sentinels := []error{
		ErrNotFound,
		ErrConflict,
		ErrInvalidInput,
		ErrConditionFailed,
		ErrInvalidOperation,
		ErrInvalidPatch,
		ErrCancelled,
		ErrService,
		ErrTransient,
		ErrNoSchema,
	}

	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v matches %v", err1, err2)
			}
		}
	}
}
