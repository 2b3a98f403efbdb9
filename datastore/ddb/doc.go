/*
Package ddb provides a DynamoDB implementation of the EntityStore interface.

Documents live in one table whose hash key is "_partitionKey" and whose range
key is "id". Every write stamps the reserved attributes through the document
codec, so any entity type with a registered schema can share the table.

The DynamodbDataStore supports:
  - Point reads, BatchGetItem multi-reads and single-partition paged queries
  - PartiQL statements with parameters
  - Conditional create, replace, upsert and delete
  - Ordered patches compiled into a single UpdateExpression, or applied in
    memory and written back conditionally when operations depend on each other
  - Bulk writes, either concurrent per-item calls or BatchWriteItem
  - Streaming with retry of transient page failures

Creating a store:

	client, err := ddb.NewDynamoDBClient(ctx, cfg)
	store, err := ddb.New(client, cfg.Store.Table, schema,
	    ddb.FromConfig(cfg),
	    ddb.WithLogger(logger),
	)

Conditions:
A caller condition is ANDed with the store's own key condition. Placeholders
starting with "#_" or ":_" belong to the store and are rejected:

	_, err := store.Replace(ctx, rs,
	    storagemodels.WithCondition("#v = :v",
	        map[string]string{"#v": "version"},
	        map[string]any{":v": 3}),
	)

Paging:
Continuation tokens of partition queries encode the last evaluated key and
are only valid for the partition they were issued for. PartiQL paging tokens
are passed through unchanged.

	page, err := store.GetPaged(ctx, &storagemodels.PagedQuery{PartitionKey: "acme|eu", PageSize: 25})
	for page.HasMore() {
	    page, err = store.GetPaged(ctx, &storagemodels.PagedQuery{
	        PartitionKey:      "acme|eu",
	        ContinuationToken: page.ContinuationToken,
	    })
	}
*/
package ddb
