/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/patch"
	"github.com/suparena/docstore/storagemodels"
	"go.uber.org/zap"
)

// maxPatchAttempts bounds the read-modify-write cycles of a sequential patch
// that keeps losing to concurrent writers.
const maxPatchAttempts = 3

// Patch applies ops to the stored document in a single UpdateItem call.
// Operations on the same path are folded in order before sending. Patches
// that depend on intermediate results are applied in memory and written back
// conditionally, see patchInOrder.
func (d *DynamodbDataStore[T]) Patch(ctx context.Context, id, pk string, ops []patch.Operation, opts ...storagemodels.RequestOption) (result *T, err error) {
	defer d.observe(ctx, "Patch", time.Now(), &err)
	ro := storagemodels.ApplyRequestOptions(opts...)

	key, err := requireKey(id, pk)
	if err != nil {
		return nil, err
	}
	if err := patch.Validate(ops, d.schema.ProtectedAttributes()); err != nil {
		return nil, err
	}
	compiled, err := patch.Compile(ops)
	if stderrors.Is(err, patch.ErrSequential) {
		return d.patchInOrder(ctx, key, ops, ro)
	}
	if err != nil {
		return nil, err
	}

	expr := newExpression()
	expr.keyCondition("attribute_exists")
	expr.require(compiled.Conditions...)
	expr.merge(compiled.Names, compiled.Values)
	if err := expr.withCaller(ro.Condition); err != nil {
		return nil, err
	}

	returnValues := types.ReturnValueAllNew
	if !ro.ContentResponseEnabled() {
		returnValues = types.ReturnValueNone
	}

	out, err := d.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName:                           &d.table,
		Key:                                 document.KeyAttributes(key),
		UpdateExpression:                    &compiled.Update,
		ConditionExpression:                 expr.condition(),
		ExpressionAttributeNames:            expr.attributeNames(),
		ExpressionAttributeValues:           expr.attributeValues(),
		ReturnValues:                        returnValues,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		if cfe, ok := conditionFailure(err); ok {
			return nil, d.explainPatchFailure(key, cfe.Item, ops, ro)
		}
		err = classify(ctx, "Patch", err)
		if errors.IsValidationError(err) {
			// the service rejects e.g. arithmetic on non-numbers this way
			return nil, errors.NewInvalidPatchError(-1, "", err.Error())
		}
		return nil, err
	}

	d.logger.Debug("patched document", zap.Stringer("key", key), zap.Int("operations", len(ops)))
	if !ro.ContentResponseEnabled() {
		return nil, nil
	}
	return d.decode(out.Attributes)
}

// explainPatchFailure works out which condition rejected a patch: the
// document is missing, an operation's path requirement failed, or the
// caller's condition did not hold.
func (d *DynamodbDataStore[T]) explainPatchFailure(key storagemodels.Key, old map[string]types.AttributeValue, ops []patch.Operation, ro storagemodels.RequestOptions) error {
	if len(old) == 0 {
		return errors.NewNotFoundError(d.schema.Name(), key.String())
	}
	if _, err := patch.Apply(old, ops); err != nil {
		return err
	}
	return errors.NewConditionFailedError("Patch", callerExpression(ro))
}

// patchInOrder reads the document, applies ops in order and writes back the
// top-level attributes they touch. The write is conditioned on those
// attributes still holding the values that were read; when another writer got
// in between, the cycle is repeated.
func (d *DynamodbDataStore[T]) patchInOrder(ctx context.Context, key storagemodels.Key, ops []patch.Operation, ro storagemodels.RequestOptions) (*T, error) {
	touched := topLevelAttributes(ops)

	for attempt := 0; ; attempt++ {
		got, err := d.client.GetItem(ctx, &sdk.GetItemInput{
			TableName:      &d.table,
			Key:            document.KeyAttributes(key),
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return nil, classify(ctx, "Patch", err)
		}
		if len(got.Item) == 0 {
			return nil, errors.NewNotFoundError(d.schema.Name(), key.String())
		}

		patched, err := patch.Apply(got.Item, ops)
		if err != nil {
			return nil, err
		}

		update, expr := writeBack(got.Item, patched, touched)
		if err := expr.withCaller(ro.Condition); err != nil {
			return nil, err
		}
		if update == "" {
			// e.g. an attribute set and removed again; nothing to write
			return d.stored(got.Item, ro)
		}

		returnValues := types.ReturnValueAllNew
		if !ro.ContentResponseEnabled() {
			returnValues = types.ReturnValueNone
		}

		out, err := d.client.UpdateItem(ctx, &sdk.UpdateItemInput{
			TableName:                           &d.table,
			Key:                                 document.KeyAttributes(key),
			UpdateExpression:                    &update,
			ConditionExpression:                 expr.condition(),
			ExpressionAttributeNames:            expr.attributeNames(),
			ExpressionAttributeValues:           expr.attributeValues(),
			ReturnValues:                        returnValues,
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		})
		if err == nil {
			d.logger.Debug("patched document in order",
				zap.Stringer("key", key),
				zap.Int("operations", len(ops)),
				zap.Int("attempt", attempt+1))
			if !ro.ContentResponseEnabled() {
				return nil, nil
			}
			return d.decode(out.Attributes)
		}

		cfe, ok := conditionFailure(err)
		if !ok {
			return nil, classify(ctx, "Patch", err)
		}
		if len(cfe.Item) == 0 {
			return nil, errors.NewNotFoundError(d.schema.Name(), key.String())
		}
		if unchanged(got.Item, cfe.Item, touched) {
			return nil, errors.NewConditionFailedError("Patch", callerExpression(ro))
		}
		if attempt+1 >= maxPatchAttempts {
			return nil, errors.NewServiceError("Patch", true,
				fmt.Errorf("document %s changed concurrently %d times", key, maxPatchAttempts))
		}

		d.logger.Debug("document changed during patch, retrying", zap.Stringer("key", key), zap.Int("attempt", attempt+1))
		select {
		case <-ctx.Done():
			return nil, errors.NewCancelledError("Patch", ctx.Err())
		case <-time.After(time.Duration(attempt+1) * d.opts.BatchRetryBackoff):
		}
	}
}

// topLevelAttributes returns the sorted distinct top-level attributes of ops.
func topLevelAttributes(ops []patch.Operation) []string {
	seen := make(map[string]struct{}, len(ops))
	var attrs []string
	for _, op := range ops {
		p, err := patch.ParsePath(op.Path)
		if err != nil {
			continue
		}
		if _, ok := seen[p[0].Name]; ok {
			continue
		}
		seen[p[0].Name] = struct{}{}
		attrs = append(attrs, p[0].Name)
	}
	sort.Strings(attrs)
	return attrs
}

// writeBack builds the update that turns the touched attributes of old into
// those of patched, with a condition that old is still current.
func writeBack(old, patched map[string]types.AttributeValue, touched []string) (string, *expression) {
	expr := newExpression()
	expr.keyCondition("attribute_exists")

	var sets, removes []string
	for i, attr := range touched {
		name := fmt.Sprintf("%sa%d", patch.NamePrefix, i)
		expr.names[name] = attr

		if prev, ok := old[attr]; ok {
			value := fmt.Sprintf("%so%d", patch.ValuePrefix, i)
			expr.values[value] = prev
			expr.require(fmt.Sprintf("%s = %s", name, value))
		} else {
			expr.require(fmt.Sprintf("attribute_not_exists(%s)", name))
		}

		if next, ok := patched[attr]; ok {
			value := fmt.Sprintf("%sn%d", patch.ValuePrefix, i)
			expr.values[value] = next
			sets = append(sets, fmt.Sprintf("%s = %s", name, value))
		} else if _, ok := old[attr]; ok {
			removes = append(removes, name)
		}
	}

	var clauses []string
	if len(sets) > 0 {
		clauses = append(clauses, "SET "+strings.Join(sets, ", "))
	}
	if len(removes) > 0 {
		clauses = append(clauses, "REMOVE "+strings.Join(removes, ", "))
	}
	return strings.Join(clauses, " "), expr
}

// unchanged reports whether the touched attributes hold the same values in a and b.
func unchanged(a, b map[string]types.AttributeValue, touched []string) bool {
	for _, attr := range touched {
		if !reflect.DeepEqual(a[attr], b[attr]) {
			return false
		}
	}
	return true
}
