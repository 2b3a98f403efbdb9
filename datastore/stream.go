/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/storagemodels"
)

// StreamPages drains every page of q through pager into a channel. Transient
// page failures are retried with linear backoff; once retries are exhausted
// the ErrorHandler decides whether the page is attempted again after one
// RetryBackoff. The channel
// is closed when the query is exhausted, a failure stops the stream, or ctx
// is done.
func StreamPages[T any](ctx context.Context, pager Pager[T], q *storagemodels.PagedQuery, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult[T] {
	options := storagemodels.DefaultStreamOptions()
	for _, opt := range opts {
		opt(&options)
	}

	var query storagemodels.PagedQuery
	if q != nil {
		query = *q
	}

	resultCh := make(chan storagemodels.StreamResult[T], options.BufferSize)
	go streamWorker(ctx, pager, query, options, resultCh)
	return resultCh
}

func streamWorker[T any](
	ctx context.Context,
	pager Pager[T],
	query storagemodels.PagedQuery,
	options storagemodels.StreamOptions,
	resultCh chan<- storagemodels.StreamResult[T],
) {
	defer close(resultCh)

	if query.PageSize == 0 {
		query.PageSize = options.PageSize
	}

	var (
		itemIndex  int64
		pageNumber int
		errs       []error
		startTime  = time.Now()
	)

	reportProgress := func(token string) {
		if options.ProgressHandler == nil {
			return
		}
		progress := storagemodels.StreamProgress{
			ItemsProcessed:    itemIndex,
			PagesProcessed:    pageNumber,
			ContinuationToken: token,
			Errors:            errs,
			StartTime:         startTime,
		}
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			progress.CurrentRate = float64(itemIndex) / elapsed
		}
		options.ProgressHandler(progress)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		page, err := fetchWithRetry(ctx, pager, &query, options)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if options.ErrorHandler == nil || !options.ErrorHandler(err) {
				select {
				case resultCh <- storagemodels.StreamResult[T]{
					Error: fmt.Errorf("query failed: %w", err),
					Meta: storagemodels.StreamMeta{
						Index:      itemIndex,
						PageNumber: pageNumber,
						Timestamp:  time.Now(),
					},
				}:
				case <-ctx.Done():
				}
				return
			}
			errs = append(errs, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(options.RetryBackoff):
			}
			continue
		}

		pageNumber++
		for _, item := range page.Items {
			result := storagemodels.StreamResult[T]{
				Item: item,
				Meta: storagemodels.StreamMeta{
					Index:      itemIndex,
					PageNumber: pageNumber,
					Timestamp:  time.Now(),
				},
			}
			select {
			case <-ctx.Done():
				return
			case resultCh <- result:
			}
			itemIndex++
		}

		reportProgress(page.ContinuationToken)

		if !page.HasMore() {
			return
		}
		query.ContinuationToken = page.ContinuationToken
	}
}

func fetchWithRetry[T any](
	ctx context.Context,
	pager Pager[T],
	query *storagemodels.PagedQuery,
	options storagemodels.StreamOptions,
) (*storagemodels.PagedList[T], error) {
	var lastErr error

	for attempt := 0; attempt <= options.MaxRetries; attempt++ {
		page, err := pager.GetPaged(ctx, query)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if !errors.IsTransient(err) {
			return nil, err
		}

		if attempt < options.MaxRetries {
			backoff := time.Duration(attempt+1) * options.RetryBackoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("query failed after %d retries: %w", options.MaxRetries, lastErr)
}
