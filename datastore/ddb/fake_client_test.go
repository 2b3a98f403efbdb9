/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/shopspring/decimal"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/storagemodels"
)

// fakeClient is an in-memory table keyed by (_partitionKey, id). It
// understands the condition and update expressions the store generates.
type fakeClient struct {
	mu    sync.Mutex
	items map[storagemodels.Key]map[string]types.AttributeValue

	// failures are returned once by the named operation.
	failures map[string]error
	// unprocessed makes batch calls leave their last request unprocessed
	// this many times.
	unprocessed int
	calls       map[string]int

	// beforeUpdate runs once inside the next UpdateItem call, before its
	// condition is checked.
	beforeUpdate func(items map[storagemodels.Key]map[string]types.AttributeValue)

	lastPut       *sdk.PutItemInput
	lastUpdate    *sdk.UpdateItemInput
	lastStatement *sdk.ExecuteStatementInput
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		items:    make(map[storagemodels.Key]map[string]types.AttributeValue),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeClient) begin(op string) error {
	f.calls[op]++
	if err, ok := f.failures[op]; ok {
		delete(f.failures, op)
		return err
	}
	return nil
}

func (f *fakeClient) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeClient) failNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

func (f *fakeClient) stored(key storagemodels.Key) (map[string]types.AttributeValue, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[key]
	return item, ok
}

func (f *fakeClient) GetItem(ctx context.Context, in *sdk.GetItemInput, _ ...func(*sdk.Options)) (*sdk.GetItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetItem"); err != nil {
		return nil, err
	}
	key, _ := document.KeyOf(in.Key)
	return &sdk.GetItemOutput{Item: f.items[key]}, nil
}

func (f *fakeClient) BatchGetItem(ctx context.Context, in *sdk.BatchGetItemInput, _ ...func(*sdk.Options)) (*sdk.BatchGetItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("BatchGetItem"); err != nil {
		return nil, err
	}

	out := &sdk.BatchGetItemOutput{
		Responses:       make(map[string][]map[string]types.AttributeValue),
		UnprocessedKeys: make(map[string]types.KeysAndAttributes),
	}
	for table, ka := range in.RequestItems {
		keys := ka.Keys
		if f.unprocessed > 0 && len(keys) > 0 {
			f.unprocessed--
			out.UnprocessedKeys[table] = types.KeysAndAttributes{Keys: keys[len(keys)-1:], ConsistentRead: ka.ConsistentRead}
			keys = keys[:len(keys)-1]
		}
		for _, k := range keys {
			key, _ := document.KeyOf(k)
			if item, ok := f.items[key]; ok {
				out.Responses[table] = append(out.Responses[table], item)
			}
		}
	}
	return out, nil
}

func (f *fakeClient) PutItem(ctx context.Context, in *sdk.PutItemInput, _ ...func(*sdk.Options)) (*sdk.PutItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("PutItem"); err != nil {
		return nil, err
	}
	f.lastPut = in

	key, _ := document.KeyOf(in.Item)
	old, exists := f.items[key]
	if err := checkCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, old, exists,
		in.ReturnValuesOnConditionCheckFailure); err != nil {
		return nil, err
	}
	f.items[key] = in.Item
	return &sdk.PutItemOutput{}, nil
}

func (f *fakeClient) UpdateItem(ctx context.Context, in *sdk.UpdateItemInput, _ ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateItem"); err != nil {
		return nil, err
	}
	f.lastUpdate = in
	if hook := f.beforeUpdate; hook != nil {
		f.beforeUpdate = nil
		hook(f.items)
	}

	key, _ := document.KeyOf(in.Key)
	old, exists := f.items[key]
	if err := checkCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, old, exists,
		in.ReturnValuesOnConditionCheckFailure); err != nil {
		return nil, err
	}

	updated := deepCopy(old)
	if updated == nil {
		updated = document.KeyAttributes(key)
	}
	if err := applyUpdate(aws.ToString(in.UpdateExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues, updated); err != nil {
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: err.Error()}
	}
	f.items[key] = updated

	out := &sdk.UpdateItemOutput{}
	if in.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = updated
	}
	return out, nil
}

func (f *fakeClient) DeleteItem(ctx context.Context, in *sdk.DeleteItemInput, _ ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteItem"); err != nil {
		return nil, err
	}

	key, _ := document.KeyOf(in.Key)
	old, exists := f.items[key]
	if err := checkCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, old, exists,
		in.ReturnValuesOnConditionCheckFailure); err != nil {
		return nil, err
	}
	delete(f.items, key)

	out := &sdk.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld && exists {
		out.Attributes = old
	}
	return out, nil
}

func (f *fakeClient) BatchWriteItem(ctx context.Context, in *sdk.BatchWriteItemInput, _ ...func(*sdk.Options)) (*sdk.BatchWriteItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("BatchWriteItem"); err != nil {
		return nil, err
	}

	out := &sdk.BatchWriteItemOutput{UnprocessedItems: make(map[string][]types.WriteRequest)}
	for table, reqs := range in.RequestItems {
		if len(reqs) > maxBatchWrite {
			return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "too many items"}
		}
		if f.unprocessed > 0 && len(reqs) > 0 {
			f.unprocessed--
			out.UnprocessedItems[table] = reqs[len(reqs)-1:]
			reqs = reqs[:len(reqs)-1]
		}
		for _, r := range reqs {
			switch {
			case r.PutRequest != nil:
				key, _ := document.KeyOf(r.PutRequest.Item)
				f.items[key] = r.PutRequest.Item
			case r.DeleteRequest != nil:
				key, _ := document.KeyOf(r.DeleteRequest.Key)
				delete(f.items, key)
			}
		}
	}
	return out, nil
}

func (f *fakeClient) Query(ctx context.Context, in *sdk.QueryInput, _ ...func(*sdk.Options)) (*sdk.QueryOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Query"); err != nil {
		return nil, err
	}
	if aws.ToString(in.KeyConditionExpression) != pkName+" = :_pk" || in.ExpressionAttributeNames[pkName] != storagemodels.PartitionKeyKey {
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "unsupported key condition"}
	}

	pk := in.ExpressionAttributeValues[":_pk"].(*types.AttributeValueMemberS).Value
	after := ""
	if in.ExclusiveStartKey != nil {
		start, _ := document.KeyOf(in.ExclusiveStartKey)
		after = start.ID
	}

	items, last := f.page(pk, after, int(aws.ToInt32(in.Limit)))
	out := &sdk.QueryOutput{Items: items, Count: int32(len(items))}
	if last != nil {
		out.LastEvaluatedKey = document.KeyAttributes(*last)
	}
	return out, nil
}

func (f *fakeClient) ExecuteStatement(ctx context.Context, in *sdk.ExecuteStatementInput, _ ...func(*sdk.Options)) (*sdk.ExecuteStatementOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ExecuteStatement"); err != nil {
		return nil, err
	}
	f.lastStatement = in

	// Only `SELECT * FROM "<table>" WHERE "_partitionKey" = ?` is understood.
	if len(in.Parameters) != 1 {
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "expected one parameter"}
	}
	pk := in.Parameters[0].(*types.AttributeValueMemberS).Value

	items, last := f.page(pk, aws.ToString(in.NextToken), int(aws.ToInt32(in.Limit)))
	out := &sdk.ExecuteStatementOutput{Items: items}
	if last != nil {
		out.NextToken = aws.String(last.ID)
	}
	return out, nil
}

// page returns up to limit items of pk with an id greater than after, and the
// last returned key when the limit was reached.
func (f *fakeClient) page(pk, after string, limit int) ([]map[string]types.AttributeValue, *storagemodels.Key) {
	var keys []storagemodels.Key
	for k := range f.items {
		if k.PartitionKey == pk && k.ID > after {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })

	var last *storagemodels.Key
	if limit > 0 && len(keys) >= limit {
		keys = keys[:limit]
		last = &keys[limit-1]
	}
	items := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		items[i] = f.items[k]
	}
	return items, last
}

func checkCondition(
	cond *string,
	names map[string]string,
	values map[string]types.AttributeValue,
	old map[string]types.AttributeValue,
	exists bool,
	onFailure types.ReturnValuesOnConditionCheckFailure,
) error {
	if cond == nil {
		return nil
	}
	ok, err := evalCondition(*cond, names, values, old)
	if err != nil {
		return &smithy.GenericAPIError{Code: "ValidationException", Message: err.Error()}
	}
	if ok {
		return nil
	}
	cfe := &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	if onFailure == types.ReturnValuesOnConditionCheckFailureAllOld && exists {
		cfe.Item = old
	}
	return cfe
}

func evalCondition(expr string, names map[string]string, values map[string]types.AttributeValue, doc map[string]types.AttributeValue) (bool, error) {
	for _, term := range splitAnd(expr) {
		term = strings.TrimSpace(term)
		for strings.HasPrefix(term, "(") && strings.HasSuffix(term, ")") {
			inner := term[1 : len(term)-1]
			if len(splitAnd(inner)) > 1 {
				ok, err := evalCondition(inner, names, values, doc)
				if err != nil || !ok {
					return ok, err
				}
				term = ""
				break
			}
			term = strings.TrimSpace(inner)
		}
		if term == "" {
			continue
		}

		var ok bool
		switch {
		case strings.HasPrefix(term, "attribute_exists(") && strings.HasSuffix(term, ")"):
			_, ok = lookup(doc, resolve(term[len("attribute_exists("):len(term)-1], names))
		case strings.HasPrefix(term, "attribute_not_exists(") && strings.HasSuffix(term, ")"):
			_, found := lookup(doc, resolve(term[len("attribute_not_exists("):len(term)-1], names))
			ok = !found
		case strings.HasPrefix(term, "attribute_type(") && strings.HasSuffix(term, ")"):
			path, typ, _ := strings.Cut(term[len("attribute_type("):len(term)-1], ", ")
			got, found := lookup(doc, resolve(path, names))
			want, _ := values[strings.TrimSpace(typ)].(*types.AttributeValueMemberS)
			ok = found && want != nil && typeCode(got) == want.Value
		case strings.Contains(term, " = "):
			parts := strings.SplitN(term, " = ", 2)
			got, found := lookup(doc, resolve(parts[0], names))
			ok = found && reflect.DeepEqual(got, values[strings.TrimSpace(parts[1])])
		default:
			return false, fmt.Errorf("unsupported condition term %q", term)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func typeCode(av types.AttributeValue) string {
	switch av.(type) {
	case *types.AttributeValueMemberS:
		return "S"
	case *types.AttributeValueMemberN:
		return "N"
	case *types.AttributeValueMemberB:
		return "B"
	case *types.AttributeValueMemberBOOL:
		return "BOOL"
	case *types.AttributeValueMemberNULL:
		return "NULL"
	case *types.AttributeValueMemberL:
		return "L"
	case *types.AttributeValueMemberM:
		return "M"
	case *types.AttributeValueMemberSS:
		return "SS"
	case *types.AttributeValueMemberNS:
		return "NS"
	case *types.AttributeValueMemberBS:
		return "BS"
	}
	return ""
}

// splitAnd splits on AND outside parentheses.
func splitAnd(expr string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && strings.HasPrefix(expr[i:], " AND ") {
			parts = append(parts, expr[start:i])
			start = i + len(" AND ")
			i += len(" AND ") - 1
		}
	}
	return append(parts, expr[start:])
}

type step struct {
	name  string
	index int
	isIdx bool
}

func resolve(path string, names map[string]string) []step {
	var steps []step
	for _, part := range strings.Split(strings.TrimSpace(path), ".") {
		name := part
		var idx []int
		if i := strings.IndexByte(part, '['); i >= 0 {
			name = part[:i]
			for _, s := range strings.Split(strings.Trim(part[i:], "[]"), "][") {
				n, _ := strconv.Atoi(s)
				idx = append(idx, n)
			}
		}
		if actual, ok := names[name]; ok {
			name = actual
		}
		steps = append(steps, step{name: name})
		for _, n := range idx {
			steps = append(steps, step{index: n, isIdx: true})
		}
	}
	return steps
}

func lookup(doc map[string]types.AttributeValue, path []step) (types.AttributeValue, bool) {
	var cur types.AttributeValue = &types.AttributeValueMemberM{Value: doc}
	for _, s := range path {
		switch c := cur.(type) {
		case *types.AttributeValueMemberM:
			if s.isIdx {
				return nil, false
			}
			v, ok := c.Value[s.name]
			if !ok {
				return nil, false
			}
			cur = v
		case *types.AttributeValueMemberL:
			if !s.isIdx || s.index >= len(c.Value) {
				return nil, false
			}
			cur = c.Value[s.index]
		default:
			return nil, false
		}
	}
	return cur, true
}

func applyUpdate(expr string, names map[string]string, values map[string]types.AttributeValue, doc map[string]types.AttributeValue) error {
	setPart, removePart := expr, ""
	if i := strings.Index(expr, "REMOVE "); i >= 0 {
		setPart, removePart = strings.TrimSpace(expr[:i]), expr[i+len("REMOVE "):]
	}
	setPart = strings.TrimPrefix(setPart, "SET ")

	type assignment struct {
		path  []step
		value types.AttributeValue
	}
	var assignments []assignment

	if setPart != "" {
		for _, item := range strings.Split(setPart, ", ") {
			lhs, rhs, ok := strings.Cut(item, " = ")
			if !ok {
				return fmt.Errorf("malformed SET action %q", item)
			}
			path := resolve(lhs, names)
			if base, delta, isAdd := strings.Cut(rhs, " + "); isAdd {
				cur, found := lookup(doc, resolve(base, names))
				if !found {
					return fmt.Errorf("the provided expression refers to an attribute that does not exist in the item")
				}
				n, ok := cur.(*types.AttributeValueMemberN)
				if !ok {
					return fmt.Errorf("an operand in the update expression has an incorrect data type")
				}
				a, _ := decimal.NewFromString(n.Value)
				b, _ := decimal.NewFromString(values[delta].(*types.AttributeValueMemberN).Value)
				assignments = append(assignments, assignment{path, &types.AttributeValueMemberN{Value: a.Add(b).String()}})
				continue
			}
			assignments = append(assignments, assignment{path, values[rhs]})
		}
	}

	for _, a := range assignments {
		if err := setPath(doc, a.path, a.value); err != nil {
			return err
		}
	}
	if removePart != "" {
		for _, item := range strings.Split(removePart, ", ") {
			removePath(doc, resolve(item, names))
		}
	}
	return nil
}

func setPath(doc map[string]types.AttributeValue, path []step, v types.AttributeValue) error {
	parent, ok := lookup(doc, path[:len(path)-1])
	if !ok {
		return fmt.Errorf("the document path provided in the update expression is invalid for update")
	}
	last := path[len(path)-1]
	switch p := parent.(type) {
	case *types.AttributeValueMemberM:
		p.Value[last.name] = v
	case *types.AttributeValueMemberL:
		if last.index < len(p.Value) {
			p.Value[last.index] = v
		} else {
			p.Value = append(p.Value, v)
		}
	default:
		return fmt.Errorf("the document path provided in the update expression is invalid for update")
	}
	return nil
}

func removePath(doc map[string]types.AttributeValue, path []step) {
	parent, ok := lookup(doc, path[:len(path)-1])
	if !ok {
		return
	}
	last := path[len(path)-1]
	switch p := parent.(type) {
	case *types.AttributeValueMemberM:
		delete(p.Value, last.name)
	case *types.AttributeValueMemberL:
		if last.index < len(p.Value) {
			p.Value = append(p.Value[:last.index], p.Value[last.index+1:]...)
		}
	}
}

func deepCopy(doc map[string]types.AttributeValue) map[string]types.AttributeValue {
	if doc == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(av types.AttributeValue) types.AttributeValue {
	switch v := av.(type) {
	case *types.AttributeValueMemberM:
		return &types.AttributeValueMemberM{Value: deepCopy(v.Value)}
	case *types.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(v.Value))
		for i, e := range v.Value {
			l[i] = copyValue(e)
		}
		return &types.AttributeValueMemberL{Value: l}
	}
	return av
}
