/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"

	"github.com/suparena/docstore/patch"
	"github.com/suparena/docstore/storagemodels"
)

// EntityStore is the typed adapter contract over a document database.
// Every operation accepts per-request options that are forwarded to the
// service unchanged.
type EntityStore[T any] interface {
	// Get returns the entity stored under id in partition pk.
	Get(ctx context.Context, id, pk string, opts ...storagemodels.RequestOption) (*T, error)

	// GetMany reads several entities at once. Keys with no document are
	// omitted from the result.
	GetMany(ctx context.Context, keys []storagemodels.Key, opts ...storagemodels.RequestOption) ([]T, error)

	// GetPaged returns one page of a single-partition query.
	GetPaged(ctx context.Context, q *storagemodels.PagedQuery, opts ...storagemodels.RequestOption) (*storagemodels.PagedList[T], error)

	// Create inserts entity and fails with a conflict when the key is taken.
	Create(ctx context.Context, entity T, opts ...storagemodels.RequestOption) (*T, error)
	CreateBulk(ctx context.Context, entities []T, opts ...storagemodels.RequestOption) (*storagemodels.BulkResult[T], error)

	// Replace overwrites an existing entity and fails when it does not exist.
	Replace(ctx context.Context, entity T, opts ...storagemodels.RequestOption) (*T, error)
	ReplaceBulk(ctx context.Context, entities []T, opts ...storagemodels.RequestOption) (*storagemodels.BulkResult[T], error)

	// Upsert writes entity whether or not it exists.
	Upsert(ctx context.Context, entity T, opts ...storagemodels.RequestOption) (*T, error)
	UpsertBulk(ctx context.Context, entities []T, opts ...storagemodels.RequestOption) (*storagemodels.BulkResult[T], error)

	// Patch applies ops atomically and in order.
	Patch(ctx context.Context, id, pk string, ops []patch.Operation, opts ...storagemodels.RequestOption) (*T, error)

	// Delete removes the document and reports whether one existed.
	Delete(ctx context.Context, id, pk string, opts ...storagemodels.RequestOption) (bool, error)
	DeleteBulk(ctx context.Context, keys []storagemodels.Key, opts ...storagemodels.RequestOption) (*storagemodels.BulkResult[storagemodels.Key], error)

	// Stream drains every page of q into the returned channel.
	Stream(ctx context.Context, q *storagemodels.PagedQuery, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult[T]
}

// Pager fetches single pages; StreamPages builds on it.
type Pager[T any] interface {
	GetPaged(ctx context.Context, q *storagemodels.PagedQuery, opts ...storagemodels.RequestOption) (*storagemodels.PagedList[T], error)
}
