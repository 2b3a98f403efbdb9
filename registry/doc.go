/*
Package registry holds the statically declared storage schema of each entity type.

A Descriptor names the fields that play a storage role: the id, the ordered
partition key components, the composite key delimiter, the schema version and
the attributes stored compressed. It is validated once, when registered:

	registry.MustRegister(registry.Descriptor[Order]{
	    Name: "Order",
	    ID:   func(o Order) string { return o.OrderID },
	    PartitionKey: []registry.Field[Order]{
	        {Attribute: "tenant", Value: func(o Order) string { return o.Tenant }},
	        {Attribute: "region", Value: func(o Order) string { return o.Region }},
	    },
	    Delimiter:     "|",
	    SchemaVersion: 2,
	    Compressed:    []string{"notes"},
	})

The resolved partition key of an order with tenant "acme" and region "eu" is
"acme|eu". Empty components are rejected, as are components of composite keys
that contain the delimiter.

Upgraders migrate raw documents written with an older schema version:

	registry.RegisterUpgrader("Order", 1, func(doc map[string]types.AttributeValue) error {
	    doc["status"] = &types.AttributeValueMemberS{Value: "open"}
	    return nil
	})

The registry is thread-safe and should be populated during initialization.
*/
package registry
