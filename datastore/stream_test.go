/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/storagemodels"
)

// pagedInts serves the numbers [0, total) in pages; failures[n] is the number
// of times the page starting at n fails before succeeding.
type pagedInts struct {
	total    int
	failures map[int]int
	err      error
	calls    int32
}

func (p *pagedInts) GetPaged(_ context.Context, q *storagemodels.PagedQuery, _ ...storagemodels.RequestOption) (*storagemodels.PagedList[int], error) {
	atomic.AddInt32(&p.calls, 1)

	start := 0
	if q.ContinuationToken != "" {
		start, _ = strconv.Atoi(q.ContinuationToken)
	}
	if p.failures[start] > 0 {
		p.failures[start]--
		return nil, p.err
	}

	end := start + int(q.PageSize)
	if end > p.total {
		end = p.total
	}
	page := &storagemodels.PagedList[int]{}
	for i := start; i < end; i++ {
		page.Items = append(page.Items, i)
	}
	if end < p.total {
		page.ContinuationToken = strconv.Itoa(end)
	}
	return page, nil
}

func drain(ch <-chan storagemodels.StreamResult[int]) (items []int, errs []error) {
	for r := range ch {
		if r.Error != nil {
			errs = append(errs, r.Error)
			continue
		}
		items = append(items, r.Item)
	}
	return items, errs
}

func TestStreamPagesDrainsAllPages(t *testing.T) {
	pager := &pagedInts{total: 23}

	var pages []int
	ch := StreamPages[int](context.Background(), pager, &storagemodels.PagedQuery{PartitionKey: "p"},
		storagemodels.WithPageSize(5),
		storagemodels.WithProgressHandler(func(p storagemodels.StreamProgress) {
			pages = append(pages, p.PagesProcessed)
		}),
	)

	items, errs := drain(ch)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(items) != 23 {
		t.Fatalf("expected 23 items, got %d", len(items))
	}
	for i, v := range items {
		if v != i {
			t.Fatalf("item %d out of order: %d", i, v)
		}
	}
	if len(pages) != 5 || pages[4] != 5 {
		t.Errorf("expected progress for 5 pages, got %v", pages)
	}
}

func TestStreamPagesRetriesTransientErrors(t *testing.T) {
	pager := &pagedInts{
		total:    10,
		failures: map[int]int{5: 2},
		err:      errors.NewServiceError("GetPaged", true, fmt.Errorf("throttled")),
	}

	ch := StreamPages[int](context.Background(), pager, &storagemodels.PagedQuery{PartitionKey: "p"},
		storagemodels.WithPageSize(5),
		storagemodels.WithRetryBackoff(time.Millisecond),
	)

	items, errs := drain(ch)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(items) != 10 {
		t.Errorf("expected 10 items, got %d", len(items))
	}
	if calls := atomic.LoadInt32(&pager.calls); calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestStreamPagesStopsOnPermanentError(t *testing.T) {
	pager := &pagedInts{
		total:    10,
		failures: map[int]int{5: 1},
		err:      errors.NewValidationError("Statement", "bad statement"),
	}

	ch := StreamPages[int](context.Background(), pager, &storagemodels.PagedQuery{PartitionKey: "p"},
		storagemodels.WithPageSize(5),
	)

	items, errs := drain(ch)
	if len(items) != 5 {
		t.Errorf("expected first page only, got %d items", len(items))
	}
	if len(errs) != 1 || !errors.IsValidationError(errs[0]) {
		t.Fatalf("expected one validation error, got %v", errs)
	}
}

func TestStreamPagesErrorHandlerContinues(t *testing.T) {
	pager := &pagedInts{
		total:    10,
		failures: map[int]int{0: 1},
		err:      errors.NewValidationError("Statement", "flaky"),
	}

	var handled int
	ch := StreamPages[int](context.Background(), pager, &storagemodels.PagedQuery{PartitionKey: "p"},
		storagemodels.WithPageSize(5),
		storagemodels.WithRetryBackoff(time.Millisecond),
		storagemodels.WithErrorHandler(func(error) bool {
			handled++
			return true
		}),
	)

	items, errs := drain(ch)
	if len(errs) != 0 || len(items) != 10 {
		t.Fatalf("expected 10 items and no errors, got %d items and %v", len(items), errs)
	}
	if handled != 1 {
		t.Errorf("expected error handler to run once, got %d", handled)
	}
}

func TestStreamPagesHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pager := &pagedInts{total: 1000}

	ch := StreamPages[int](ctx, pager, &storagemodels.PagedQuery{PartitionKey: "p"},
		storagemodels.WithPageSize(10),
		storagemodels.WithBufferSize(1),
	)

	<-ch
	cancel()

	count := 0
	for range ch {
		count++
	}
	if count >= 999 {
		t.Errorf("stream did not stop after cancellation")
	}
}

func TestStreamPagesErrorHandlerWaitsBeforeRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pager := &pagedInts{
		total:    10,
		failures: map[int]int{0: 1 << 30},
		err:      errors.NewValidationError("Statement", "always"),
	}

	ch := StreamPages[int](ctx, pager, &storagemodels.PagedQuery{PartitionKey: "p"},
		storagemodels.WithRetryBackoff(20*time.Millisecond),
		storagemodels.WithErrorHandler(func(error) bool { return true }),
	)

	time.Sleep(100 * time.Millisecond)
	cancel()
	for range ch {
	}

	if calls := atomic.LoadInt32(&pager.calls); calls > 10 {
		t.Errorf("expected the skipped page to be retried after a backoff, got %d attempts in 100ms", calls)
	}
}
