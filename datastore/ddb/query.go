/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/storagemodels"
	"go.uber.org/zap"
)

// GetPaged returns one page of a query. Without a statement every document
// of q.PartitionKey is returned in id order; a statement is executed as
// PartiQL with its parameters and the service's paging token.
func (d *DynamodbDataStore[T]) GetPaged(ctx context.Context, q *storagemodels.PagedQuery, opts ...storagemodels.RequestOption) (page *storagemodels.PagedList[T], err error) {
	defer d.observe(ctx, "GetPaged", time.Now(), &err)
	ro := storagemodels.ApplyRequestOptions(opts...)

	if q == nil {
		return nil, errors.NewValidationError("query", "query is required")
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = d.opts.PageSize
	}
	consistent := aws.Bool(ro.ConsistentReadEnabled(d.opts.ConsistentRead))

	var (
		items []map[string]types.AttributeValue
		token string
	)
	if q.Statement == "" {
		items, token, err = d.queryPartition(ctx, q, pageSize, consistent)
	} else {
		items, token, err = d.executeStatement(ctx, q, pageSize, consistent)
	}
	if err != nil {
		return nil, err
	}

	page = &storagemodels.PagedList[T]{
		Items:             make([]T, 0, len(items)),
		ContinuationToken: token,
	}
	for _, item := range items {
		entity, err := d.decode(item)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, *entity)
	}

	d.logger.Debug("fetched page", zap.Int("items", len(page.Items)), zap.Bool("more", page.HasMore()))
	return page, nil
}

func (d *DynamodbDataStore[T]) queryPartition(ctx context.Context, q *storagemodels.PagedQuery, pageSize int32, consistent *bool) ([]map[string]types.AttributeValue, string, error) {
	if q.PartitionKey == "" {
		return nil, "", errors.NewValidationError("PartitionKey", "partition key is required without a statement")
	}

	input := &sdk.QueryInput{
		TableName:                 &d.table,
		KeyConditionExpression:    aws.String(pkName + " = :_pk"),
		ExpressionAttributeNames:  map[string]string{pkName: storagemodels.PartitionKeyKey},
		ExpressionAttributeValues: map[string]types.AttributeValue{":_pk": &types.AttributeValueMemberS{Value: q.PartitionKey}},
		Limit:                     aws.Int32(pageSize),
		ConsistentRead:            consistent,
	}

	if q.ContinuationToken != "" {
		start, err := startKey(q.ContinuationToken, q.PartitionKey)
		if err != nil {
			return nil, "", err
		}
		input.ExclusiveStartKey = start
	}

	out, err := d.client.Query(ctx, input)
	if err != nil {
		return nil, "", classify(ctx, "GetPaged", err)
	}

	token := ""
	if len(out.LastEvaluatedKey) > 0 {
		last, ok := document.KeyOf(out.LastEvaluatedKey)
		if !ok {
			return nil, "", fmt.Errorf("unexpected last evaluated key shape")
		}
		if token, err = storagemodels.EncodeContinuation(map[string]string{
			storagemodels.PartitionKeyKey: last.PartitionKey,
			storagemodels.IDKey:           last.ID,
		}); err != nil {
			return nil, "", err
		}
	}
	return out.Items, token, nil
}

// startKey decodes a continuation token issued for partition pk.
func startKey(token, pk string) (map[string]types.AttributeValue, error) {
	k, err := storagemodels.DecodeContinuation(token)
	if err != nil {
		return nil, errors.NewValidationError("ContinuationToken", err.Error())
	}
	if k[storagemodels.PartitionKeyKey] != pk || k[storagemodels.IDKey] == "" {
		return nil, errors.NewValidationError("ContinuationToken", "token does not belong to this query")
	}
	return document.KeyAttributes(storagemodels.Key{ID: k[storagemodels.IDKey], PartitionKey: pk}), nil
}

func (d *DynamodbDataStore[T]) executeStatement(ctx context.Context, q *storagemodels.PagedQuery, pageSize int32, consistent *bool) ([]map[string]types.AttributeValue, string, error) {
	params := make([]types.AttributeValue, len(q.Parameters))
	for i, p := range q.Parameters {
		av, err := attributevalue.Marshal(p)
		if err != nil {
			return nil, "", errors.NewValidationError("Parameters", fmt.Sprintf("parameter %d: %v", i, err))
		}
		params[i] = av
	}

	input := &sdk.ExecuteStatementInput{
		Statement:      aws.String(q.Statement),
		Limit:          aws.Int32(pageSize),
		ConsistentRead: consistent,
	}
	if len(params) > 0 {
		input.Parameters = params
	}
	if q.ContinuationToken != "" {
		input.NextToken = aws.String(q.ContinuationToken)
	}

	out, err := d.client.ExecuteStatement(ctx, input)
	if err != nil {
		return nil, "", classify(ctx, "GetPaged", err)
	}
	return out.Items, aws.ToString(out.NextToken), nil
}

// Stream drains every page of q. See datastore.StreamPages.
func (d *DynamodbDataStore[T]) Stream(ctx context.Context, q *storagemodels.PagedQuery, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult[T] {
	return datastore.StreamPages[T](ctx, d, q, opts...)
}
