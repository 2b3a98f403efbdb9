/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"time"

	"github.com/suparena/docstore/config"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Options are the store-wide defaults. Per-request options override them.
type Options struct {
	Logger            *zap.Logger
	MeterProvider     metric.MeterProvider
	BulkEnabled       bool
	BulkConcurrency   int
	ConsistentRead    bool
	PageSize          int32
	MaxBatchRetries   int
	BatchRetryBackoff time.Duration
}

// Option is a functional option for configuring the store
type Option func(*Options)

// DefaultOptions returns default store options
func DefaultOptions() Options {
	return Options{
		BulkEnabled:       true,
		BulkConcurrency:   16,
		PageSize:          100,
		MaxBatchRetries:   5,
		BatchRetryBackoff: 100 * time.Millisecond,
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMeterProvider sets the meter provider used for store metrics
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Options) {
		o.MeterProvider = mp
	}
}

// WithBulkEnabled sets whether bulk operations run concurrently or batched
func WithBulkEnabled(enabled bool) Option {
	return func(o *Options) {
		o.BulkEnabled = enabled
	}
}

// WithBulkConcurrency caps the concurrent requests of one bulk operation
func WithBulkConcurrency(n int) Option {
	return func(o *Options) {
		o.BulkConcurrency = n
	}
}

// WithConsistentRead sets the default read consistency
func WithConsistentRead(consistent bool) Option {
	return func(o *Options) {
		o.ConsistentRead = consistent
	}
}

// WithPageSize sets the default page size of GetPaged
func WithPageSize(size int32) Option {
	return func(o *Options) {
		o.PageSize = size
	}
}

// WithMaxBatchRetries sets how often unprocessed batch items are resent
func WithMaxBatchRetries(retries int) Option {
	return func(o *Options) {
		o.MaxBatchRetries = retries
	}
}

// WithBatchRetryBackoff sets the base backoff between batch retries
func WithBatchRetryBackoff(backoff time.Duration) Option {
	return func(o *Options) {
		o.BatchRetryBackoff = backoff
	}
}

// FromConfig applies the store settings of cfg.
func FromConfig(cfg *config.Config) Option {
	return func(o *Options) {
		o.BulkEnabled = cfg.Store.BulkEnabled
		o.BulkConcurrency = cfg.Store.BulkConcurrency
		o.ConsistentRead = cfg.Store.ConsistentRead
		o.PageSize = cfg.Store.PageSize
		o.MaxBatchRetries = cfg.Store.BatchRetries
		o.BatchRetryBackoff = cfg.Store.BatchRetryBackoff
	}
}
