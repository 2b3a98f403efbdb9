/*
Package storagemodels defines the data structures shared by every docstore backend.

Key Types:

Key:
The id and resolved partition key that address one document:

	key := storagemodels.Key{ID: "A", PartitionKey: "tenant1"}

PagedQuery and PagedList:
A single-partition query and one page of its results:

	page, err := store.GetPaged(ctx, &storagemodels.PagedQuery{
	    PartitionKey: "tenant1",
	    PageSize:     25,
	})
	next := page.ContinuationToken // empty when there are no further pages

RequestOptions:
Per-request settings forwarded to the service:

	store.Create(ctx, entity,
	    storagemodels.WithConsistentRead(true),
	    storagemodels.WithContentResponse(false),
	)

BulkResult:
Bulk operations are best-effort and report one BulkItem per request item:

	res, err := store.UpsertBulk(ctx, entities)
	for _, failed := range res.Failed() {
	    log.Printf("item %d: %v", failed.Index, failed.Err)
	}

Reserved keys:
CompressedKey, PartitionKeyKey, SchemaVersionKey and IDKey name the metadata
attributes written into every stored document.
*/
package storagemodels
