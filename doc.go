/*
Package docstore is a thin entity store over a DynamoDB document table.

Entities of any Go type are stored as documents keyed by an id and a
partition key resolved from the entity's fields. The store adds a small set of
reserved attributes to every document: the resolved partition key, the schema
version and a compression flag.

Key Features:
  - Type-safe operations using Go generics
  - Composite partition keys joined with a delimiter
  - Transparent zstd compression of selected attributes
  - Schema versions with registered upgraders
  - Ordered patch operations (set, replace, remove, increment)
  - Continuation-token paging and streaming
  - Best-effort bulk operations with per-item outcomes
  - Semantic error types for better error handling
  - An in-memory store for tests

Basic Usage:

	schema := registry.MustRegister(registry.Descriptor[Player]{
	    Name:         "Player",
	    ID:           func(p Player) string { return p.ID },
	    PartitionKey: []registry.Field[Player]{{Attribute: "tenant", Value: func(p Player) string { return p.Tenant }}},
	})

	cfg, _ := config.Load()
	stores := docstore.NewStores()
	players, _ := docstore.Open(ctx, stores, cfg, schema)

	created, err := players.Create(ctx, Player{ID: "p1", Tenant: "acme"})
	got, err := players.Get(ctx, "p1", "acme")

Packages:
  - datastore: the EntityStore interface and streaming
  - datastore/ddb: the DynamoDB implementation
  - datastore/mock: the in-memory implementation
  - registry: entity schemas and schema upgraders
  - document: the entity to document codec
  - patch: patch operations
  - errors: error types
*/
package docstore
