/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/metrics"
	"github.com/suparena/docstore/storagemodels"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service limits per batch request.
const (
	maxBatchGet   = 100
	maxBatchWrite = 25
)

// GetMany reads keys with BatchGetItem. Keys without a document are left
// out; duplicates are read once. Results follow the order of the first
// occurrence of each key.
func (d *DynamodbDataStore[T]) GetMany(ctx context.Context, keys []storagemodels.Key, opts ...storagemodels.RequestOption) (result []T, err error) {
	defer d.observe(ctx, "GetMany", time.Now(), &err)
	ro := storagemodels.ApplyRequestOptions(opts...)

	unique := make([]storagemodels.Key, 0, len(keys))
	seen := make(map[storagemodels.Key]struct{}, len(keys))
	for _, k := range keys {
		if _, err := requireKey(k.ID, k.PartitionKey); err != nil {
			return nil, err
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}

	consistent := aws.Bool(ro.ConsistentReadEnabled(d.opts.ConsistentRead))
	found := make(map[storagemodels.Key]map[string]types.AttributeValue, len(unique))
	for start := 0; start < len(unique); start += maxBatchGet {
		chunk := unique[start:min(start+maxBatchGet, len(unique))]
		req := make([]map[string]types.AttributeValue, len(chunk))
		for i, k := range chunk {
			req[i] = document.KeyAttributes(k)
		}
		if err := d.batchGet(ctx, req, consistent, found); err != nil {
			return nil, err
		}
	}

	result = make([]T, 0, len(found))
	for _, k := range unique {
		item, ok := found[k]
		if !ok {
			continue
		}
		entity, err := d.decode(item)
		if err != nil {
			return nil, err
		}
		result = append(result, *entity)
	}
	return result, nil
}

func (d *DynamodbDataStore[T]) batchGet(ctx context.Context, keys []map[string]types.AttributeValue, consistent *bool, found map[storagemodels.Key]map[string]types.AttributeValue) error {
	pending := types.KeysAndAttributes{Keys: keys, ConsistentRead: consistent}

	for attempt := 0; ; attempt++ {
		out, err := d.client.BatchGetItem(ctx, &sdk.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{d.table: pending},
		})
		if err != nil {
			return classify(ctx, "GetMany", err)
		}
		for _, item := range out.Responses[d.table] {
			if k, ok := document.KeyOf(item); ok {
				found[k] = item
			}
		}

		next, ok := out.UnprocessedKeys[d.table]
		if !ok || len(next.Keys) == 0 {
			return nil
		}
		if attempt >= d.opts.MaxBatchRetries {
			return errors.NewServiceError("GetMany", true,
				fmt.Errorf("%d keys left unprocessed after %d retries", len(next.Keys), attempt))
		}
		d.logger.Warn("retrying unprocessed keys", zap.Int("keys", len(next.Keys)), zap.Int("attempt", attempt+1))
		if err := d.backoff(ctx, "GetMany", attempt); err != nil {
			return err
		}
		pending = next
	}
}

// CreateBulk creates every entity, concurrently when bulk execution is on.
func (d *DynamodbDataStore[T]) CreateBulk(ctx context.Context, entities []T, opts ...storagemodels.RequestOption) (result *storagemodels.BulkResult[T], err error) {
	defer d.observe(ctx, "CreateBulk", time.Now(), &err)
	ro := storagemodels.ApplyRequestOptions(opts...)

	result, prepared, runnable := d.prepare(entities, true)
	err = runEach(ctx, "CreateBulk", ro.BulkEnabled(d.opts.BulkEnabled), d.opts.BulkConcurrency, result, runnable,
		func(ctx context.Context, i int) (*T, error) {
			return d.create(ctx, prepared[i], ro)
		})
	if err != nil {
		return nil, err
	}
	recordBulk(ctx, d.metrics, d.table, "CreateBulk", result)
	return result, nil
}

// ReplaceBulk replaces every entity, concurrently when bulk execution is on.
func (d *DynamodbDataStore[T]) ReplaceBulk(ctx context.Context, entities []T, opts ...storagemodels.RequestOption) (result *storagemodels.BulkResult[T], err error) {
	defer d.observe(ctx, "ReplaceBulk", time.Now(), &err)
	ro := storagemodels.ApplyRequestOptions(opts...)

	result, prepared, runnable := d.prepare(entities, false)
	err = runEach(ctx, "ReplaceBulk", ro.BulkEnabled(d.opts.BulkEnabled), d.opts.BulkConcurrency, result, runnable,
		func(ctx context.Context, i int) (*T, error) {
			return d.replace(ctx, prepared[i], ro)
		})
	if err != nil {
		return nil, err
	}
	recordBulk(ctx, d.metrics, d.table, "ReplaceBulk", result)
	return result, nil
}

// UpsertBulk writes every entity. With bulk execution on the writes are sent
// with BatchWriteItem, unless a condition is given, which batches cannot carry.
func (d *DynamodbDataStore[T]) UpsertBulk(ctx context.Context, entities []T, opts ...storagemodels.RequestOption) (result *storagemodels.BulkResult[T], err error) {
	defer d.observe(ctx, "UpsertBulk", time.Now(), &err)
	ro := storagemodels.ApplyRequestOptions(opts...)

	result, prepared, runnable := d.prepare(entities, true)
	bulk := ro.BulkEnabled(d.opts.BulkEnabled)

	if !bulk || ro.Condition != nil {
		err = runEach(ctx, "UpsertBulk", bulk, d.opts.BulkConcurrency, result, runnable,
			func(ctx context.Context, i int) (*T, error) {
				return d.upsert(ctx, prepared[i], ro)
			})
		if err != nil {
			return nil, err
		}
		recordBulk(ctx, d.metrics, d.table, "UpsertBulk", result)
		return result, nil
	}

	items := make(map[int]map[string]types.AttributeValue, len(runnable))
	reqs := make([]types.WriteRequest, 0, len(runnable))
	sent := make([]int, 0, len(runnable))
	for _, i := range runnable {
		item, _, err := d.codec.Encode(prepared[i])
		if err != nil {
			result.Items[i].Err = err
			continue
		}
		items[i] = item
		reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		sent = append(sent, i)
	}

	failures, err := d.batchWrite(ctx, "UpsertBulk", reqs)
	if err != nil {
		return nil, err
	}
	for n, i := range sent {
		if failures[n] != nil {
			result.Items[i].Err = failures[n]
			continue
		}
		result.Items[i].Value, result.Items[i].Err = d.stored(items[i], ro)
	}
	recordBulk(ctx, d.metrics, d.table, "UpsertBulk", result)
	return result, nil
}

// DeleteBulk deletes every key. Keys without a document succeed. The value
// of a successful item is its key.
func (d *DynamodbDataStore[T]) DeleteBulk(ctx context.Context, keys []storagemodels.Key, opts ...storagemodels.RequestOption) (result *storagemodels.BulkResult[storagemodels.Key], err error) {
	defer d.observe(ctx, "DeleteBulk", time.Now(), &err)
	ro := storagemodels.ApplyRequestOptions(opts...)

	result = storagemodels.NewBulkResult[storagemodels.Key](len(keys))
	seen := make(map[storagemodels.Key]int, len(keys))
	var runnable []int
	for i, k := range keys {
		result.Items[i].Key = k
		if _, err := requireKey(k.ID, k.PartitionKey); err != nil {
			result.Items[i].Err = err
			continue
		}
		if first, dup := seen[k]; dup {
			result.Items[i].Err = duplicateKey(k, first)
			continue
		}
		seen[k] = i
		runnable = append(runnable, i)
	}

	bulk := ro.BulkEnabled(d.opts.BulkEnabled)
	if !bulk || ro.Condition != nil {
		err = runEach(ctx, "DeleteBulk", bulk, d.opts.BulkConcurrency, result, runnable,
			func(ctx context.Context, i int) (*storagemodels.Key, error) {
				if _, err := d.delete(ctx, keys[i], ro); err != nil {
					return nil, err
				}
				k := keys[i]
				return &k, nil
			})
		if err != nil {
			return nil, err
		}
		recordBulk(ctx, d.metrics, d.table, "DeleteBulk", result)
		return result, nil
	}

	reqs := make([]types.WriteRequest, len(runnable))
	for n, i := range runnable {
		reqs[n] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: document.KeyAttributes(keys[i])}}
	}
	failures, err := d.batchWrite(ctx, "DeleteBulk", reqs)
	if err != nil {
		return nil, err
	}
	for n, i := range runnable {
		if failures[n] != nil {
			result.Items[i].Err = failures[n]
			continue
		}
		k := keys[i]
		result.Items[i].Value = &k
	}
	recordBulk(ctx, d.metrics, d.table, "DeleteBulk", result)
	return result, nil
}

// prepare resolves the key of every entity and returns the indices to
// execute. Entities that have no valid key, or repeat an earlier key, fail
// without being sent.
func (d *DynamodbDataStore[T]) prepare(entities []T, assignIDs bool) (*storagemodels.BulkResult[T], []T, []int) {
	result := storagemodels.NewBulkResult[T](len(entities))
	prepared := make([]T, len(entities))
	copy(prepared, entities)

	seen := make(map[storagemodels.Key]int, len(entities))
	runnable := make([]int, 0, len(entities))
	for i := range prepared {
		if assignIDs {
			d.schema.AssignID(&prepared[i])
		}
		key, err := d.schema.Key(prepared[i])
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
		runnable = append(runnable, i)
	}
	return result, prepared, runnable
}

// batchWrite sends reqs with BatchWriteItem in chunks, resending unprocessed
// items. It returns one error slot per request; the error result is only
// set when ctx ended the call.
func (d *DynamodbDataStore[T]) batchWrite(ctx context.Context, op string, reqs []types.WriteRequest) ([]error, error) {
	failures := make([]error, len(reqs))
	pos := make(map[storagemodels.Key]int, len(reqs))
	for n, r := range reqs {
		if k, ok := writeKey(r); ok {
			pos[k] = n
		}
	}
	fail := func(pending []types.WriteRequest, err error) {
		for _, r := range pending {
			if k, ok := writeKey(r); ok {
				failures[pos[k]] = err
			}
		}
	}

	for start := 0; start < len(reqs); start += maxBatchWrite {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelledError(op, err)
		}
		pending := reqs[start:min(start+maxBatchWrite, len(reqs))]

		for attempt := 0; ; attempt++ {
			out, err := d.client.BatchWriteItem(ctx, &sdk.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{d.table: pending},
			})
			if err != nil {
				err = classify(ctx, op, err)
				if errors.IsCancelled(err) {
					return nil, err
				}
				fail(pending, err)
				break
			}

			pending = out.UnprocessedItems[d.table]
			if len(pending) == 0 {
				break
			}
			if attempt >= d.opts.MaxBatchRetries {
				fail(pending, errors.NewServiceError(op, true,
					fmt.Errorf("item left unprocessed after %d retries", attempt)))
				break
			}
			d.logger.Warn("retrying unprocessed items", zap.String("operation", op),
				zap.Int("items", len(pending)), zap.Int("attempt", attempt+1))
			if err := d.backoff(ctx, op, attempt); err != nil {
				return nil, err
			}
		}
	}
	return failures, nil
}

func (d *DynamodbDataStore[T]) backoff(ctx context.Context, op string, attempt int) error {
	select {
	case <-ctx.Done():
		return errors.NewCancelledError(op, ctx.Err())
	case <-time.After(time.Duration(attempt+1) * d.opts.BatchRetryBackoff):
		return nil
	}
}

// runEach calls fn for every runnable index and records the outcome in
// result, concurrently up to limit when parallel is set. A done ctx aborts
// the whole call.
func runEach[R any](
	ctx context.Context,
	op string,
	parallel bool,
	limit int,
	result *storagemodels.BulkResult[R],
	runnable []int,
	fn func(ctx context.Context, i int) (*R, error),
) error {
	record := func(i int) {
		v, err := fn(ctx, i)
		result.Items[i].Value, result.Items[i].Err = v, err
	}

	if parallel {
		var g errgroup.Group
		g.SetLimit(limit)
		for _, i := range runnable {
			if ctx.Err() != nil {
				break
			}
			i := i // per-iteration copy; go.mod targets go 1.21
			g.Go(func() error {
				record(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, i := range runnable {
			if ctx.Err() != nil {
				break
			}
			record(i)
		}
	}

	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError(op, err)
	}
	return nil
}

func recordBulk[R any](ctx context.Context, m *metrics.Metrics, table, op string, result *storagemodels.BulkResult[R]) {
	failed := len(result.Failed())
	m.RecordBulk(ctx, table, op, len(result.Items)-failed, failed)
}

func duplicateKey(key storagemodels.Key, first int) error {
	return errors.NewValidationError(storagemodels.IDKey,
		fmt.Sprintf("key %s repeats item %d of the same request", key, first))
}

func writeKey(r types.WriteRequest) (storagemodels.Key, bool) {
	switch {
	case r.PutRequest != nil:
		return document.KeyOf(r.PutRequest.Item)
	case r.DeleteRequest != nil:
		return document.KeyOf(r.DeleteRequest.Key)
	}
	return storagemodels.Key{}, false
}
