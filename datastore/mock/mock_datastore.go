/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides an in-memory EntityStore for testing
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/patch"
	"github.com/suparena/docstore/registry"
	"github.com/suparena/docstore/storagemodels"
)

// DataStore is an in-memory implementation of datastore.EntityStore[T].
// Documents are encoded with the same codec as the DynamoDB store, so
// reserved attributes, compression and patches behave alike. Caller
// conditions are not evaluated.
type DataStore[T any] struct {
	mu     sync.RWMutex
	docs   map[storagemodels.Key]map[string]types.AttributeValue
	schema *registry.Schema[T]
	codec  *document.Codec[T]

	queryFunc   func(ctx context.Context, q *storagemodels.PagedQuery) (*storagemodels.PagedList[T], error)
	writeError  error
	deleteError error
	patchError  error
}

var _ datastore.EntityStore[struct{}] = (*DataStore[struct{}])(nil)

// New creates an empty mock store for entities described by schema
func New[T any](schema *registry.Schema[T]) *DataStore[T] {
	return &DataStore[T]{
		docs:   make(map[storagemodels.Key]map[string]types.AttributeValue),
		schema: schema,
		codec:  document.NewCodec(schema),
	}
}

// WithQueryFunc replaces the default partition query of GetPaged and Stream
func (m *DataStore[T]) WithQueryFunc(f func(ctx context.Context, q *storagemodels.PagedQuery) (*storagemodels.PagedList[T], error)) *DataStore[T] {
	m.queryFunc = f
	return m
}

// WithWriteError makes Create, Replace and Upsert, single and bulk, return err
func (m *DataStore[T]) WithWriteError(err error) *DataStore[T] {
	m.writeError = err
	return m
}

// WithDeleteError makes Delete and DeleteBulk return err
func (m *DataStore[T]) WithDeleteError(err error) *DataStore[T] {
	m.deleteError = err
	return m
}

// WithPatchError makes Patch return err
func (m *DataStore[T]) WithPatchError(err error) *DataStore[T] {
	m.patchError = err
	return m
}

// Get retrieves an entity by id and partition key
func (m *DataStore[T]) Get(ctx context.Context, id, pk string, _ ...storagemodels.RequestOption) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("Get", err)
	}
	key, err := keyOf(id, pk)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, exists := m.docs[key]
	if !exists {
		return nil, errors.NewNotFoundError(m.schema.Name(), key.String())
	}
	return m.codec.Decode(doc)
}

// GetMany returns the entities of keys that exist, once each, in first-occurrence order
func (m *DataStore[T]) GetMany(ctx context.Context, keys []storagemodels.Key, _ ...storagemodels.RequestOption) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("GetMany", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]T, 0, len(keys))
	seen := make(map[storagemodels.Key]struct{}, len(keys))
	for _, k := range keys {
		if _, err := keyOf(k.ID, k.PartitionKey); err != nil {
			return nil, err
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		doc, exists := m.docs[k]
		if !exists {
			continue
		}
		entity, err := m.codec.Decode(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, *entity)
	}
	return result, nil
}

// GetPaged pages through one partition in id order. Statements need a query func.
func (m *DataStore[T]) GetPaged(ctx context.Context, q *storagemodels.PagedQuery, _ ...storagemodels.RequestOption) (*storagemodels.PagedList[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("GetPaged", err)
	}
	if q == nil {
		return nil, errors.NewValidationError("query", "query is required")
	}
	if m.queryFunc != nil {
		return m.queryFunc(ctx, q)
	}
	if q.Statement != "" {
		return nil, errors.NewInvalidOperationError("GetPaged", "statements need a query func in the mock store")
	}
	if q.PartitionKey == "" {
		return nil, errors.NewValidationError("PartitionKey", "partition key is required without a statement")
	}

	after := ""
	if q.ContinuationToken != "" {
		last, err := storagemodels.DecodeContinuation(q.ContinuationToken)
		if err != nil {
			return nil, errors.NewValidationError("ContinuationToken", err.Error())
		}
		if last[storagemodels.PartitionKeyKey] != q.PartitionKey {
			return nil, errors.NewValidationError("ContinuationToken", "token does not belong to this query")
		}
		after = last[storagemodels.IDKey]
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for k := range m.docs {
		if k.PartitionKey == q.PartitionKey && k.ID > after {
			ids = append(ids, k.ID)
		}
	}
	sort.Strings(ids)

	page := &storagemodels.PagedList[T]{}
	if q.PageSize > 0 && len(ids) > int(q.PageSize) {
		ids = ids[:q.PageSize]
		token, err := storagemodels.EncodeContinuation(map[string]string{
			storagemodels.PartitionKeyKey: q.PartitionKey,
			storagemodels.IDKey:           ids[len(ids)-1],
		})
		if err != nil {
			return nil, err
		}
		page.ContinuationToken = token
	}
	page.Items = make([]T, 0, len(ids))
	for _, id := range ids {
		entity, err := m.codec.Decode(m.docs[storagemodels.Key{ID: id, PartitionKey: q.PartitionKey}])
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, *entity)
	}
	return page, nil
}

// Stream drains every page of q
func (m *DataStore[T]) Stream(ctx context.Context, q *storagemodels.PagedQuery, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult[T] {
	return datastore.StreamPages[T](ctx, m, q, opts...)
}

// Create stores a new entity, assigning an id when the schema can
func (m *DataStore[T]) Create(ctx context.Context, entity T, opts ...storagemodels.RequestOption) (*T, error) {
	return m.write(ctx, "Create", entity, storagemodels.ApplyRequestOptions(opts...))
}

// Replace overwrites an existing entity
func (m *DataStore[T]) Replace(ctx context.Context, entity T, opts ...storagemodels.RequestOption) (*T, error) {
	return m.write(ctx, "Replace", entity, storagemodels.ApplyRequestOptions(opts...))
}

// Upsert stores entity whether or not it exists
func (m *DataStore[T]) Upsert(ctx context.Context, entity T, opts ...storagemodels.RequestOption) (*T, error) {
	return m.write(ctx, "Upsert", entity, storagemodels.ApplyRequestOptions(opts...))
}

func (m *DataStore[T]) write(ctx context.Context, op string, entity T, ro storagemodels.RequestOptions) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError(op, err)
	}
	if m.writeError != nil {
		return nil, m.writeError
	}

	if op != "Replace" {
		m.schema.AssignID(&entity)
	}
	doc, key, err := m.codec.Encode(entity)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.docs[key]
	switch op {
	case "Create":
		if exists {
			return nil, errors.NewConflictError(m.schema.Name(), key.String())
		}
	case "Replace":
		if key.ID == key.PartitionKey {
			return nil, errors.NewInvalidOperationError("Replace", "id must differ from the partition key")
		}
		if !exists {
			return nil, errors.NewNotFoundError(m.schema.Name(), key.String())
		}
	}
	m.docs[key] = doc

	if !ro.ContentResponseEnabled() {
		return nil, nil
	}
	return m.codec.Decode(doc)
}

// Patch applies ops in order to the stored document
func (m *DataStore[T]) Patch(ctx context.Context, id, pk string, ops []patch.Operation, opts ...storagemodels.RequestOption) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("Patch", err)
	}
	if m.patchError != nil {
		return nil, m.patchError
	}
	key, err := keyOf(id, pk)
	if err != nil {
		return nil, err
	}
	if err := patch.Validate(ops, m.schema.ProtectedAttributes()); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, exists := m.docs[key]
	if !exists {
		return nil, errors.NewNotFoundError(m.schema.Name(), key.String())
	}
	patched, err := patch.Apply(doc, ops)
	if err != nil {
		return nil, err
	}
	m.docs[key] = patched

	if !storagemodels.ApplyRequestOptions(opts...).ContentResponseEnabled() {
		return nil, nil
	}
	return m.codec.Decode(patched)
}

// Delete removes an entity and reports whether it existed
func (m *DataStore[T]) Delete(ctx context.Context, id, pk string, _ ...storagemodels.RequestOption) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errors.NewCancelledError("Delete", err)
	}
	if m.deleteError != nil {
		return false, m.deleteError
	}
	key, err := keyOf(id, pk)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.docs[key]
	delete(m.docs, key)
	return exists, nil
}

// CreateBulk creates every entity
func (m *DataStore[T]) CreateBulk(ctx context.Context, entities []T, opts ...storagemodels.RequestOption) (*storagemodels.BulkResult[T], error) {
	return m.writeBulk(ctx, "Create", entities, storagemodels.ApplyRequestOptions(opts...))
}

// ReplaceBulk replaces every entity
func (m *DataStore[T]) ReplaceBulk(ctx context.Context, entities []T, opts ...storagemodels.RequestOption) (*storagemodels.BulkResult[T], error) {
	return m.writeBulk(ctx, "Replace", entities, storagemodels.ApplyRequestOptions(opts...))
}

// UpsertBulk upserts every entity
func (m *DataStore[T]) UpsertBulk(ctx context.Context, entities []T, opts ...storagemodels.RequestOption) (*storagemodels.BulkResult[T], error) {
	return m.writeBulk(ctx, "Upsert", entities, storagemodels.ApplyRequestOptions(opts...))
}

func (m *DataStore[T]) writeBulk(ctx context.Context, op string, entities []T, ro storagemodels.RequestOptions) (*storagemodels.BulkResult[T], error) {
	result := storagemodels.NewBulkResult[T](len(entities))
	seen := make(map[storagemodels.Key]int, len(entities))
	for i, entity := range entities {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelledError(op+"Bulk", err)
		}
		if op != "Replace" {
			m.schema.AssignID(&entity)
		}
		key, err := m.schema.Key(entity)
		if err != nil {
			result.Items[i].Err = err
			continue
		}
		result.Items[i].Key = key
		if first, dup := seen[key]; dup {
			result.Items[i].Err = duplicateKey(key, first)
			continue
		}
		seen[key] = i
		result.Items[i].Value, result.Items[i].Err = m.write(ctx, op, entity, ro)
	}
	return result, nil
}

// DeleteBulk deletes every key; absent keys succeed
func (m *DataStore[T]) DeleteBulk(ctx context.Context, keys []storagemodels.Key, opts ...storagemodels.RequestOption) (*storagemodels.BulkResult[storagemodels.Key], error) {
	result := storagemodels.NewBulkResult[storagemodels.Key](len(keys))
	seen := make(map[storagemodels.Key]int, len(keys))
	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelledError("DeleteBulk", err)
		}
		result.Items[i].Key = k
		if first, dup := seen[k]; dup {
			result.Items[i].Err = duplicateKey(k, first)
			continue
		}
		seen[k] = i
		if _, err := m.Delete(ctx, k.ID, k.PartitionKey, opts...); err != nil {
			result.Items[i].Err = err
			continue
		}
		key := k
		result.Items[i].Value = &key
	}
	return result, nil
}

// Helper methods for testing

// Documents returns a copy of the stored documents keyed by their primary key
func (m *DataStore[T]) Documents() map[storagemodels.Key]map[string]types.AttributeValue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[storagemodels.Key]map[string]types.AttributeValue, len(m.docs))
	for k, doc := range m.docs {
		cp := make(map[string]types.AttributeValue, len(doc))
		for attr, v := range doc {
			cp[attr] = v
		}
		result[k] = cp
	}
	return result
}

// Count returns the number of stored entities
func (m *DataStore[T]) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Clear removes all data
func (m *DataStore[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[storagemodels.Key]map[string]types.AttributeValue)
}

func keyOf(id, pk string) (storagemodels.Key, error) {
	if id == "" {
		return storagemodels.Key{}, errors.NewValidationError(storagemodels.IDKey, "id is required")
	}
	if pk == "" {
		return storagemodels.Key{}, errors.NewValidationError(storagemodels.PartitionKeyKey, "partition key is required")
	}
	return storagemodels.Key{ID: id, PartitionKey: pk}, nil
}

func duplicateKey(key storagemodels.Key, first int) error {
	return errors.NewValidationError(storagemodels.IDKey,
		fmt.Sprintf("key %s repeats item %d of the same request", key, first))
}
