/*
Package errors provides semantic error types for the docstore library.

Every failure an EntityStore reports falls into one of a small set of kinds,
checked with the standard errors.Is() function or the provided helpers:

	var (
	    ErrNotFound         = errors.New("entity not found")
	    ErrConflict         = errors.New("entity already exists")
	    ErrInvalidInput     = errors.New("invalid input")
	    ErrConditionFailed  = errors.New("condition check failed")
	    ErrInvalidOperation = errors.New("invalid operation")
	    ErrInvalidPatch     = errors.New("invalid patch")
	    ErrCancelled        = errors.New("operation cancelled")
	    ErrService          = errors.New("service error")
	    ErrTransient        = errors.New("transient service error")
	)

Usage:

	user, err := store.Get(ctx, "123", "tenant1")
	if err != nil {
	    if errors.IsNotFound(err) {
	        return nil, fmt.Errorf("user %s does not exist", "123")
	    }
	    return nil, err
	}

ServiceError and CancelledError wrap the underlying SDK or context error, so
errors.Is(err, context.Canceled) and errors.As against SDK exception types keep
working on values returned by the stores.
*/
package errors
