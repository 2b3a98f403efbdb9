/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"errors"
	"fmt"
)

// Key identifies a single document by its id and resolved partition key.
type Key struct {
	ID           string
	PartitionKey string
}

// String renders the key as "partitionKey/id".
func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.PartitionKey, k.ID)
}

// PagedQuery describes one page of a single-partition query.
type PagedQuery struct {
	// PartitionKey scopes the default select-all query. Required when Statement is empty.
	PartitionKey string
	// Statement is an optional PartiQL statement forwarded to the service verbatim.
	// When empty, every document in PartitionKey is selected in id order.
	Statement string
	// Parameters are bound to the "?" placeholders of Statement.
	Parameters []any
	// ContinuationToken resumes a previous query. Empty for the first page.
	ContinuationToken string
	// PageSize caps the number of documents evaluated per page. Zero uses the store default.
	PageSize int32
}

// PagedList is one page of query results.
type PagedList[T any] struct {
	Items []T
	// ContinuationToken resumes the query after this page; empty when exhausted.
	ContinuationToken string
}

// HasMore reports whether another page may follow.
func (p *PagedList[T]) HasMore() bool {
	return p.ContinuationToken != ""
}

// Condition is a caller-supplied condition expression ANDed with the store's own.
// Placeholders must not start with "#_" or ":_", which the store reserves.
type Condition struct {
	Expression string
	Names      map[string]string
	Values     map[string]any
}

// RequestOptions are forwarded to the database service per request.
type RequestOptions struct {
	// ConsistentRead requests strongly consistent reads.
	ConsistentRead *bool
	// Bulk toggles bulk execution for the *Bulk operations.
	Bulk *bool
	// ContentResponse controls whether write operations return the stored entity.
	ContentResponse *bool
	// Condition adds an optimistic-concurrency condition to writes.
	Condition *Condition
}

// RequestOption is a functional option for a single request
type RequestOption func(*RequestOptions)

// ApplyRequestOptions folds opts into a RequestOptions value
func ApplyRequestOptions(opts ...RequestOption) RequestOptions {
	var ro RequestOptions
	for _, opt := range opts {
		opt(&ro)
	}
	return ro
}

// WithConsistentRead sets the read consistency for the request
func WithConsistentRead(consistent bool) RequestOption {
	return func(o *RequestOptions) {
		o.ConsistentRead = &consistent
	}
}

// WithBulk turns bulk execution on or off for the request
func WithBulk(enabled bool) RequestOption {
	return func(o *RequestOptions) {
		o.Bulk = &enabled
	}
}

// WithContentResponse controls whether writes return the stored entity
func WithContentResponse(enabled bool) RequestOption {
	return func(o *RequestOptions) {
		o.ContentResponse = &enabled
	}
}

// WithCondition attaches a condition expression to write operations
func WithCondition(expression string, names map[string]string, values map[string]any) RequestOption {
	return func(o *RequestOptions) {
		o.Condition = &Condition{Expression: expression, Names: names, Values: values}
	}
}

// ContentResponseEnabled defaults to true.
func (o RequestOptions) ContentResponseEnabled() bool {
	return o.ContentResponse == nil || *o.ContentResponse
}

// BulkEnabled resolves the bulk toggle against the store default.
func (o RequestOptions) BulkEnabled(def bool) bool {
	if o.Bulk == nil {
		return def
	}
	return *o.Bulk
}

// ConsistentReadEnabled resolves read consistency against the store default.
func (o RequestOptions) ConsistentReadEnabled(def bool) bool {
	if o.ConsistentRead == nil {
		return def
	}
	return *o.ConsistentRead
}

// BulkItem is the outcome of one item of a bulk request.
type BulkItem[R any] struct {
	// Index is the position of the item in the request.
	Index int
	Key   Key
	// Value is set on success; nil when the content response is disabled.
	Value *R
	Err   error
}

// BulkResult collects per-item outcomes in request order.
type BulkResult[R any] struct {
	Items []BulkItem[R]
}

// NewBulkResult allocates a result with one slot per request item.
func NewBulkResult[R any](n int) *BulkResult[R] {
	items := make([]BulkItem[R], n)
	for i := range items {
		items[i].Index = i
	}
	return &BulkResult[R]{Items: items}
}

// OK reports whether every item succeeded.
func (r *BulkResult[R]) OK() bool {
	for _, it := range r.Items {
		if it.Err != nil {
			return false
		}
	}
	return true
}

// Succeeded returns the values of successful items that carry one.
func (r *BulkResult[R]) Succeeded() []R {
	out := make([]R, 0, len(r.Items))
	for _, it := range r.Items {
		if it.Err == nil && it.Value != nil {
			out = append(out, *it.Value)
		}
	}
	return out
}

// Failed returns the failed items.
func (r *BulkResult[R]) Failed() []BulkItem[R] {
	var out []BulkItem[R]
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// Err joins the per-item errors, or returns nil when all items succeeded.
func (r *BulkResult[R]) Err() error {
	var errs []error
	for _, it := range r.Items {
		if it.Err != nil {
			errs = append(errs, fmt.Errorf("item %d (%s): %w", it.Index, it.Key, it.Err))
		}
	}
	return errors.Join(errs...)
}
