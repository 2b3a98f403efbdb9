/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package metrics

import (
	"context"
	"time"

	"github.com/suparena/docstore/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/suparena/docstore"

type Metrics struct {
	Operations metric.Int64Counter
	Duration   metric.Float64Histogram
	BulkItems  metric.Int64Counter
}

// New creates the store instruments on mp, or on the global meter provider
// when mp is nil.
func New(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	m := &Metrics{}
	var err error

	m.Operations, err = meter.Int64Counter(
		"docstore_operations_total",
		metric.WithDescription("Total number of store operations by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.Duration, err = meter.Float64Histogram(
		"docstore_operation_duration_seconds",
		metric.WithDescription("Store operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.BulkItems, err = meter.Int64Counter(
		"docstore_bulk_items_total",
		metric.WithDescription("Total number of bulk items by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Record counts one operation and its latency.
func (m *Metrics) Record(ctx context.Context, table, op string, err error, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("table", table),
		attribute.String("operation", op),
		attribute.String("outcome", Outcome(err)),
	)

	m.Operations.Add(ctx, 1, labels)
	m.Duration.Record(ctx, duration.Seconds(), labels)
}

// RecordBulk counts the per-item outcomes of a bulk operation.
func (m *Metrics) RecordBulk(ctx context.Context, table, op string, succeeded, failed int) {
	base := []attribute.KeyValue{
		attribute.String("table", table),
		attribute.String("operation", op),
	}
	if succeeded > 0 {
		m.BulkItems.Add(ctx, int64(succeeded), metric.WithAttributes(append(base, attribute.String("outcome", "ok"))...))
	}
	if failed > 0 {
		m.BulkItems.Add(ctx, int64(failed), metric.WithAttributes(append(base, attribute.String("outcome", "error"))...))
	}
}

// Outcome maps an operation error to a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.IsNotFound(err):
		return "not_found"
	case errors.IsConflict(err):
		return "conflict"
	case errors.IsConditionFailed(err):
		return "condition_failed"
	case errors.IsValidationError(err), errors.IsInvalidOperation(err), errors.IsInvalidPatch(err):
		return "invalid"
	case errors.IsCancelled(err):
		return "cancelled"
	case errors.IsTransient(err):
		return "transient"
	}
	return "error"
}
