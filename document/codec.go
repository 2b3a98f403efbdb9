/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package document

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/klauspost/compress/zstd"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/registry"
	"github.com/suparena/docstore/storagemodels"
)

// EncodeAll and DecodeAll are safe for concurrent use.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// Codec maps entities of type T to storage documents and back.
type Codec[T any] struct {
	schema *registry.Schema[T]
}

// NewCodec creates a Codec for the given schema.
func NewCodec[T any](schema *registry.Schema[T]) *Codec[T] {
	return &Codec[T]{schema: schema}
}

// Schema returns the schema the codec was built with.
func (c *Codec[T]) Schema() *registry.Schema[T] {
	return c.schema
}

// Encode marshals entity into a document carrying the reserved id, partition
// key, schema version and compression attributes.
func (c *Codec[T]) Encode(entity T) (map[string]types.AttributeValue, storagemodels.Key, error) {
	key, err := c.schema.Key(entity)
	if err != nil {
		return nil, storagemodels.Key{}, err
	}

	item, err := attributevalue.MarshalMap(entity)
	if err != nil {
		return nil, storagemodels.Key{}, fmt.Errorf("failed to marshal entity: %w", err)
	}

	item[storagemodels.IDKey] = &types.AttributeValueMemberS{Value: key.ID}
	item[storagemodels.PartitionKeyKey] = &types.AttributeValueMemberS{Value: key.PartitionKey}
	if v := c.schema.SchemaVersion(); v > 0 {
		item[storagemodels.SchemaVersionKey] = &types.AttributeValueMemberN{Value: strconv.Itoa(v)}
	}

	compressed := false
	for _, attr := range c.schema.Compressed() {
		av, ok := item[attr]
		if !ok {
			continue
		}
		switch tv := av.(type) {
		case *types.AttributeValueMemberS:
			item[attr] = &types.AttributeValueMemberB{Value: encoder.EncodeAll([]byte(tv.Value), nil)}
			compressed = true
		case *types.AttributeValueMemberNULL:
			// nothing to compress
		default:
			return nil, storagemodels.Key{}, errors.NewValidationError(attr, "only string attributes can be compressed")
		}
	}
	if compressed {
		item[storagemodels.CompressedKey] = &types.AttributeValueMemberBOOL{Value: true}
	}

	return item, key, nil
}

// Decode unmarshals a stored document into a new T. Compressed attributes are
// restored and documents written by an older schema version are upgraded first.
// item is not modified.
func (c *Codec[T]) Decode(item map[string]types.AttributeValue) (*T, error) {
	doc := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		doc[k] = v
	}

	if flag, ok := doc[storagemodels.CompressedKey].(*types.AttributeValueMemberBOOL); ok && flag.Value {
		for _, attr := range c.schema.Compressed() {
			b, ok := doc[attr].(*types.AttributeValueMemberB)
			if !ok {
				continue
			}
			raw, err := decoder.DecodeAll(b.Value, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress attribute %q: %w", attr, err)
			}
			doc[attr] = &types.AttributeValueMemberS{Value: string(raw)}
		}
	}
	delete(doc, storagemodels.CompressedKey)

	stored, err := StoredVersion(doc)
	if err != nil {
		return nil, err
	}
	if current := c.schema.SchemaVersion(); stored < current {
		if err := registry.Upgrade(c.schema.Name(), doc, stored, current); err != nil {
			return nil, err
		}
	}
	delete(doc, storagemodels.SchemaVersionKey)

	result := new(T)
	if err := attributevalue.UnmarshalMap(doc, result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return result, nil
}

// StoredVersion returns the schema version recorded in a document, or zero
// when it carries none.
func StoredVersion(item map[string]types.AttributeValue) (int, error) {
	av, ok := item[storagemodels.SchemaVersionKey]
	if !ok {
		return 0, nil
	}
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", storagemodels.SchemaVersionKey)
	}
	v, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q: %w", n.Value, err)
	}
	return v, nil
}

// KeyAttributes builds the primary key attributes addressing key.
func KeyAttributes(key storagemodels.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		storagemodels.PartitionKeyKey: &types.AttributeValueMemberS{Value: key.PartitionKey},
		storagemodels.IDKey:           &types.AttributeValueMemberS{Value: key.ID},
	}
}

// KeyOf reads the primary key of a stored document.
func KeyOf(item map[string]types.AttributeValue) (storagemodels.Key, bool) {
	pk, ok := item[storagemodels.PartitionKeyKey].(*types.AttributeValueMemberS)
	if !ok {
		return storagemodels.Key{}, false
	}
	id, ok := item[storagemodels.IDKey].(*types.AttributeValueMemberS)
	if !ok {
		return storagemodels.Key{}, false
	}
	return storagemodels.Key{ID: id.Value, PartitionKey: pk.Value}, true
}
