/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

// Reserved attribute names written into every stored document.
const (
	// CompressedKey is set to true when at least one attribute of the document
	// is stored compressed.
	CompressedKey = "_compressed"

	// PartitionKeyKey holds the resolved partition key; it is the table's hash key.
	PartitionKeyKey = "_partitionKey"

	// SchemaVersionKey holds the schema version the document was written with.
	SchemaVersionKey = "_schemaVersion"

	// IDKey holds the entity id; it is the table's range key.
	IDKey = "id"

	// DefaultPartitionKeyDelimiter joins the components of a composite partition key.
	DefaultPartitionKeyDelimiter = "|"
)

// IsReservedKey reports whether name is one of the reserved document attributes.
func IsReservedKey(name string) bool {
	switch name {
	case CompressedKey, PartitionKeyKey, SchemaVersionKey, IDKey:
		return true
	}
	return false
}
