package ratelimit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the instrumentation scope used for limiter metrics.
const MeterName = "github.com/rpggio/taskflow/ratelimit"

// Metrics holds the limiter's instruments.
type Metrics struct {
	Admitted metric.Int64Counter
	Rejected metric.Int64Counter
}

// NewMetrics creates the limiter instruments from meter. A nil meter
// yields no-op instruments.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(MeterName)
	}

	m := &Metrics{}
	var err error

	m.Admitted, err = meter.Int64Counter("taskflow.ratelimit.admitted",
		metric.WithDescription("Operations admitted by the rate limiter"),
	)
	if err != nil {
		return nil, err
	}

	m.Rejected, err = meter.Int64Counter("taskflow.ratelimit.rejected",
		metric.WithDescription("Operations rejected by the rate limiter"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) record(ctx context.Context, op Operation, allowed bool) {
	attrs := metric.WithAttributes(attribute.String("operation", string(op)))
	if allowed {
		m.Admitted.Add(ctx, 1, attrs)
		return
	}
	m.Rejected.Add(ctx, 1, attrs)
}
