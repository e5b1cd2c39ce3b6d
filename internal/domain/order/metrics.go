package order

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/xenking/kart-checkout/internal/domain/order"

var tracer = otel.Tracer(instrumentationName)

// Metrics holds order counters. A nil *Metrics records nothing.
type Metrics struct {
	checkouts     metric.Int64Counter
	failures      metric.Int64Counter
	cancellations metric.Int64Counter
}

// NewMetrics registers the order counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	checkouts, err := meter.Int64Counter("kart.checkout.count",
		metric.WithDescription("Orders placed"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("kart.checkout.failures",
		metric.WithDescription("Checkouts that did not produce an order"),
	)
	if err != nil {
		return nil, err
	}
	cancellations, err := meter.Int64Counter("kart.order.cancellations",
		metric.WithDescription("Orders cancelled, including rejected payments"),
	)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		checkouts:     checkouts,
		failures:      failures,
		cancellations: cancellations,
	}, nil
}

func (m *Metrics) checkout(ctx context.Context, paymentStatus PaymentStatus) {
	if m == nil {
		return
	}
	m.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_status", string(paymentStatus))))
}

func (m *Metrics) checkoutFailed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) cancelled(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.cancellations.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
