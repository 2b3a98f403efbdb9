/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/docstore/config"
	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/log"
	"github.com/suparena/docstore/metrics"
	"github.com/suparena/docstore/patch"
	"github.com/suparena/docstore/registry"
	"github.com/suparena/docstore/storagemodels"
	"go.uber.org/zap"
)

// pkName is the placeholder the store uses for the partition key attribute.
const pkName = patch.NamePrefix + "pk"

// DynamodbDataStore implements datastore.EntityStore[T] on a DynamoDB table
// whose hash key is _partitionKey and whose range key is id.
type DynamodbDataStore[T any] struct {
	client  Client
	table   string
	schema  *registry.Schema[T]
	codec   *document.Codec[T]
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
}

var _ datastore.EntityStore[struct{}] = (*DynamodbDataStore[struct{}])(nil)

// New creates a store for T on table. When schema is nil the schema
// registered for T is used.
func New[T any](client Client, table string, schema *registry.Schema[T], opts ...Option) (*DynamodbDataStore[T], error) {
	if client == nil {
		return nil, errors.NewValidationError("client", "a DynamoDB client is required")
	}
	if table == "" {
		return nil, errors.NewValidationError("table", "table name is required")
	}
	if schema == nil {
		var ok bool
		if schema, ok = registry.Lookup[T](); !ok {
			var zero T
			return nil, fmt.Errorf("%w: %T", errors.ErrNoSchema, zero)
		}
	}

	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.BulkConcurrency < 1 {
		options.BulkConcurrency = 1
	}
	if options.PageSize < 1 {
		options.PageSize = DefaultOptions().PageSize
	}

	m, err := metrics.New(options.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return &DynamodbDataStore[T]{
		client:  client,
		table:   table,
		schema:  schema,
		codec:   document.NewCodec(schema),
		opts:    options,
		logger:  log.OrNop(options.Logger).With(zap.String("table", table), zap.String("entity", schema.Name())),
		metrics: m,
	}, nil
}

// NewFromConfig creates the DynamoDB client and store described by cfg.
// opts are applied after the settings from cfg.
func NewFromConfig[T any](ctx context.Context, cfg *config.Config, schema *registry.Schema[T], opts ...Option) (*DynamodbDataStore[T], error) {
	client, err := NewDynamoDBClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB client: %w", err)
	}
	return New(client, cfg.Store.Table, schema, append([]Option{FromConfig(cfg)}, opts...)...)
}

// Schema returns the schema documents are encoded with.
func (d *DynamodbDataStore[T]) Schema() *registry.Schema[T] {
	return d.schema
}

// Get retrieves a single entity.
func (d *DynamodbDataStore[T]) Get(ctx context.Context, id, pk string, opts ...storagemodels.RequestOption) (result *T, err error) {
	defer d.observe(ctx, "Get", time.Now(), &err)
	ro := storagemodels.ApplyRequestOptions(opts...)

	key, err := requireKey(id, pk)
	if err != nil {
		return nil, err
	}

	out, err := d.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:      &d.table,
		Key:            document.KeyAttributes(key),
		ConsistentRead: aws.Bool(ro.ConsistentReadEnabled(d.opts.ConsistentRead)),
	})
	if err != nil {
		return nil, classify(ctx, "Get", err)
	}
	if out.Item == nil {
		return nil, errors.NewNotFoundError(d.schema.Name(), key.String())
	}
	return d.decode(out.Item)
}

// Create inserts a new entity. Entities without an id get a generated one
// when the schema can assign it.
func (d *DynamodbDataStore[T]) Create(ctx context.Context, entity T, opts ...storagemodels.RequestOption) (result *T, err error) {
	defer d.observe(ctx, "Create", time.Now(), &err)
	return d.create(ctx, entity, storagemodels.ApplyRequestOptions(opts...))
}

func (d *DynamodbDataStore[T]) create(ctx context.Context, entity T, ro storagemodels.RequestOptions) (*T, error) {
	d.schema.AssignID(&entity)
	item, key, err := d.codec.Encode(entity)
	if err != nil {
		return nil, err
	}

	expr := newExpression()
	expr.keyCondition("attribute_not_exists")
	if err := expr.withCaller(ro.Condition); err != nil {
		return nil, err
	}

	if err := d.put(ctx, item, expr); err != nil {
		if cfe, ok := conditionFailure(err); ok {
			if len(cfe.Item) > 0 {
				return nil, errors.NewConflictError(d.schema.Name(), key.String())
			}
			return nil, errors.NewConditionFailedError("Create", callerExpression(ro))
		}
		return nil, classify(ctx, "Create", err)
	}

	d.logger.Debug("created document", zap.Stringer("key", key))
	return d.stored(item, ro)
}

// Replace overwrites an existing entity.
func (d *DynamodbDataStore[T]) Replace(ctx context.Context, entity T, opts ...storagemodels.RequestOption) (result *T, err error) {
	defer d.observe(ctx, "Replace", time.Now(), &err)
	return d.replace(ctx, entity, storagemodels.ApplyRequestOptions(opts...))
}

func (d *DynamodbDataStore[T]) replace(ctx context.Context, entity T, ro storagemodels.RequestOptions) (*T, error) {
	item, key, err := d.codec.Encode(entity)
	if err != nil {
		return nil, err
	}
	if key.ID == key.PartitionKey {
		return nil, errors.NewInvalidOperationError("Replace", "id must differ from the partition key")
	}

	expr := newExpression()
	expr.keyCondition("attribute_exists")
	if err := expr.withCaller(ro.Condition); err != nil {
		return nil, err
	}

	if err := d.put(ctx, item, expr); err != nil {
		if cfe, ok := conditionFailure(err); ok {
			if len(cfe.Item) == 0 {
				return nil, errors.NewNotFoundError(d.schema.Name(), key.String())
			}
			return nil, errors.NewConditionFailedError("Replace", callerExpression(ro))
		}
		return nil, classify(ctx, "Replace", err)
	}

	d.logger.Debug("replaced document", zap.Stringer("key", key))
	return d.stored(item, ro)
}

// Upsert writes entity, creating or overwriting it.
func (d *DynamodbDataStore[T]) Upsert(ctx context.Context, entity T, opts ...storagemodels.RequestOption) (result *T, err error) {
	defer d.observe(ctx, "Upsert", time.Now(), &err)
	return d.upsert(ctx, entity, storagemodels.ApplyRequestOptions(opts...))
}

func (d *DynamodbDataStore[T]) upsert(ctx context.Context, entity T, ro storagemodels.RequestOptions) (*T, error) {
	d.schema.AssignID(&entity)
	item, key, err := d.codec.Encode(entity)
	if err != nil {
		return nil, err
	}

	expr := newExpression()
	if err := expr.withCaller(ro.Condition); err != nil {
		return nil, err
	}

	if err := d.put(ctx, item, expr); err != nil {
		if _, ok := conditionFailure(err); ok {
			return nil, errors.NewConditionFailedError("Upsert", callerExpression(ro))
		}
		return nil, classify(ctx, "Upsert", err)
	}

	d.logger.Debug("upserted document", zap.Stringer("key", key))
	return d.stored(item, ro)
}

// Delete removes a document and reports whether it existed.
func (d *DynamodbDataStore[T]) Delete(ctx context.Context, id, pk string, opts ...storagemodels.RequestOption) (existed bool, err error) {
	defer d.observe(ctx, "Delete", time.Now(), &err)
	key, err := requireKey(id, pk)
	if err != nil {
		return false, err
	}
	return d.delete(ctx, key, storagemodels.ApplyRequestOptions(opts...))
}

func (d *DynamodbDataStore[T]) delete(ctx context.Context, key storagemodels.Key, ro storagemodels.RequestOptions) (bool, error) {
	expr := newExpression()
	if err := expr.withCaller(ro.Condition); err != nil {
		return false, err
	}

	input := &sdk.DeleteItemInput{
		TableName:                 &d.table,
		Key:                       document.KeyAttributes(key),
		ReturnValues:              types.ReturnValueAllOld,
		ConditionExpression:       expr.condition(),
		ExpressionAttributeNames:  expr.attributeNames(),
		ExpressionAttributeValues: expr.attributeValues(),
	}
	if input.ConditionExpression != nil {
		input.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld
	}

	out, err := d.client.DeleteItem(ctx, input)
	if err != nil {
		if _, ok := conditionFailure(err); ok {
			return false, errors.NewConditionFailedError("Delete", callerExpression(ro))
		}
		return false, classify(ctx, "Delete", err)
	}

	existed := len(out.Attributes) > 0
	d.logger.Debug("deleted document", zap.Stringer("key", key), zap.Bool("existed", existed))
	return existed, nil
}

func (d *DynamodbDataStore[T]) put(ctx context.Context, item map[string]types.AttributeValue, expr *expression) error {
	input := &sdk.PutItemInput{
		TableName:                 &d.table,
		Item:                      item,
		ConditionExpression:       expr.condition(),
		ExpressionAttributeNames:  expr.attributeNames(),
		ExpressionAttributeValues: expr.attributeValues(),
	}
	if input.ConditionExpression != nil {
		input.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld
	}
	_, err := d.client.PutItem(ctx, input)
	return err
}

// stored returns the entity view of a written document, or nil when the
// content response is disabled.
func (d *DynamodbDataStore[T]) stored(item map[string]types.AttributeValue, ro storagemodels.RequestOptions) (*T, error) {
	if !ro.ContentResponseEnabled() {
		return nil, nil
	}
	return d.decode(item)
}

func (d *DynamodbDataStore[T]) decode(item map[string]types.AttributeValue) (*T, error) {
	if v, err := document.StoredVersion(item); err == nil && v > d.schema.SchemaVersion() {
		key, _ := document.KeyOf(item)
		d.logger.Warn("document written by a newer schema version",
			zap.Stringer("key", key),
			zap.Int("stored", v),
			zap.Int("current", d.schema.SchemaVersion()))
	}
	return d.codec.Decode(item)
}

func (d *DynamodbDataStore[T]) observe(ctx context.Context, op string, start time.Time, err *error) {
	d.metrics.Record(ctx, d.table, op, *err, time.Since(start))
	if *err != nil {
		d.logger.Debug("operation failed", zap.String("operation", op), zap.Error(*err))
	}
}

func requireKey(id, pk string) (storagemodels.Key, error) {
	if id == "" {
		return storagemodels.Key{}, errors.NewValidationError(storagemodels.IDKey, "id is required")
	}
	if pk == "" {
		return storagemodels.Key{}, errors.NewValidationError(storagemodels.PartitionKeyKey, "partition key is required")
	}
	return storagemodels.Key{ID: id, PartitionKey: pk}, nil
}

func callerExpression(ro storagemodels.RequestOptions) string {
	if ro.Condition == nil {
		return ""
	}
	return ro.Condition.Expression
}

// expression collects the terms of a ConditionExpression with their
// placeholders. The store's own placeholders start with "#_" and ":_".
type expression struct {
	terms  []string
	names  map[string]string
	values map[string]types.AttributeValue
}

func newExpression() *expression {
	return &expression{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

// keyCondition adds fn(_partitionKey), e.g. attribute_exists, as a term.
func (e *expression) keyCondition(fn string) {
	e.names[pkName] = storagemodels.PartitionKeyKey
	e.terms = append(e.terms, fn+"("+pkName+")")
}

func (e *expression) require(terms ...string) {
	e.terms = append(e.terms, terms...)
}

func (e *expression) merge(names map[string]string, values map[string]types.AttributeValue) {
	for k, v := range names {
		e.names[k] = v
	}
	for k, v := range values {
		e.values[k] = v
	}
}

func (e *expression) withCaller(c *storagemodels.Condition) error {
	if c == nil || c.Expression == "" {
		return nil
	}
	for ph, name := range c.Names {
		if strings.HasPrefix(ph, patch.NamePrefix) {
			return errors.NewValidationError("Condition", fmt.Sprintf("placeholder %q uses the reserved prefix %q", ph, patch.NamePrefix))
		}
		e.names[ph] = name
	}
	for ph, v := range c.Values {
		if strings.HasPrefix(ph, patch.ValuePrefix) {
			return errors.NewValidationError("Condition", fmt.Sprintf("placeholder %q uses the reserved prefix %q", ph, patch.ValuePrefix))
		}
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return errors.NewValidationError("Condition", fmt.Sprintf("cannot marshal value of %q: %v", ph, err))
		}
		e.values[ph] = av
	}
	e.terms = append(e.terms, "("+c.Expression+")")
	return nil
}

func (e *expression) condition() *string {
	if len(e.terms) == 0 {
		return nil
	}
	return aws.String(strings.Join(e.terms, " AND "))
}

// attributeNames and attributeValues return nil when empty; DynamoDB rejects
// empty placeholder maps.
func (e *expression) attributeNames() map[string]string {
	if len(e.names) == 0 {
		return nil
	}
	return e.names
}

func (e *expression) attributeValues() map[string]types.AttributeValue {
	if len(e.values) == 0 {
		return nil
	}
	return e.values
}
