package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// orderBookMetrics holds the singleton instance
	orderBookMetrics *OrderBookMetrics
	// meter is the global meter for order book metrics
	meter = otel.GetMeterProvider().Meter(instrumentationName)
)

// OrderBookMetrics holds metrics for order book operations
type OrderBookMetrics struct {
	ordersProcessedTotal metric.Int64Counter
	tradesMatchedTotal   metric.Int64Counter
	restingOrders        metric.Int64UpDownCounter
}

// GetOrderBookMetrics returns the OrderBookMetrics singleton
func GetOrderBookMetrics() *OrderBookMetrics {
	if orderBookMetrics == nil {
		ordersProcessedTotal, err := meter.Int64Counter(
			"orderbook.orders_processed.total",
			metric.WithDescription("Total number of orders processed"),
			metric.WithUnit("{order}"),
		)
		if err != nil {
			return &OrderBookMetrics{}
		}

		tradesMatchedTotal, err := meter.Int64Counter(
			"orderbook.trades_matched.total",
			metric.WithDescription("Total number of trades matched"),
			metric.WithUnit("{trade}"),
		)
		if err != nil {
			return &OrderBookMetrics{}
		}

		restingOrders, err := meter.Int64UpDownCounter(
			"orderbook.resting_orders",
			metric.WithDescription("Number of orders currently resting in the book"),
			metric.WithUnit("{order}"),
		)
		if err != nil {
			return &OrderBookMetrics{}
		}

		orderBookMetrics = &OrderBookMetrics{
			ordersProcessedTotal: ordersProcessedTotal,
			tradesMatchedTotal:   tradesMatchedTotal,
			restingOrders:        restingOrders,
		}
	}

	return orderBookMetrics
}

// RecordOrderProcessed increments the processed orders counter
func (m *OrderBookMetrics) RecordOrderProcessed(ctx context.Context, orderType string) {
	if m.ordersProcessedTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("order.type", orderType),
	}
	m.ordersProcessedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTradesMatched increments the matched trades counter
func (m *OrderBookMetrics) RecordTradesMatched(ctx context.Context, count int64) {
	if m.tradesMatchedTotal == nil {
		return
	}
	m.tradesMatchedTotal.Add(ctx, count)
}

// RecordRestingOrders adjusts the resting orders gauge by delta
func (m *OrderBookMetrics) RecordRestingOrders(ctx context.Context, delta int64) {
	if m.restingOrders == nil {
		return
	}
	m.restingOrders.Add(ctx, delta)
}
