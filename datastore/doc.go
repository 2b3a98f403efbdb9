/*
Package datastore defines the typed entity store contract shared by every backend.

The main interface is EntityStore[T]:

	type EntityStore[T any] interface {
	    Get(ctx, id, pk, opts...) (*T, error)
	    GetMany(ctx, keys, opts...) ([]T, error)
	    GetPaged(ctx, query, opts...) (*storagemodels.PagedList[T], error)
	    Create / Replace / Upsert(ctx, entity, opts...) (*T, error)
	    CreateBulk / ReplaceBulk / UpsertBulk(ctx, entities, opts...) (*storagemodels.BulkResult[T], error)
	    Patch(ctx, id, pk, ops, opts...) (*T, error)
	    Delete(ctx, id, pk, opts...) (bool, error)
	    DeleteBulk(ctx, keys, opts...) (*storagemodels.BulkResult[storagemodels.Key], error)
	    Stream(ctx, query, opts...) <-chan storagemodels.StreamResult[T]
	}

Implementations:
  - ddb: DynamoDB implementation, one table keyed by (_partitionKey, id)
  - mock: In-memory implementation for testing

Bulk operations are best effort: each item reports its own outcome in the
BulkResult, and the call itself only fails for invalid input or cancellation.

StreamPages turns any Pager into a Stream with retries, progress reporting
and error handling, so backends only have to implement GetPaged.
*/
package datastore
