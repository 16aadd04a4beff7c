package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instruments mirrors the event log into OTel meter instruments so an
// exporter can scrape outcome counts, spend, and latency without polling
// the recorder.
type instruments struct {
	lookups metric.Int64Counter
	cost    metric.Float64Counter
	latency metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	lookups, err := meter.Int64Counter(
		"search.lookup.total",
		metric.WithDescription("Total number of cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	cost, err := meter.Float64Counter(
		"search.provider.cost",
		metric.WithDescription("Cumulative provider spend"),
		metric.WithUnit("{usd}"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram(
		"search.lookup.duration_ms",
		metric.WithDescription("Lookup duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &instruments{lookups: lookups, cost: cost, latency: latency}, nil
}

func (ins *instruments) record(e Event) {
	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.String("outcome", string(e.Outcome)),
		attribute.String("cache.type", string(e.CacheType)),
	}
	if e.ProviderID != "" {
		attrs = append(attrs, attribute.String("provider.id", e.ProviderID))
	}
	opt := metric.WithAttributes(attrs...)

	ins.lookups.Add(ctx, 1, opt)
	ins.latency.Record(ctx, e.LatencyMs, opt)
	if e.Cost > 0 {
		ins.cost.Add(ctx, e.Cost, opt)
	}
}

// AttachMeter wires the recorder to an OTel meter. Every subsequent Record
// also updates the meter's instruments.
func (r *Recorder) AttachMeter(meter metric.Meter) error {
	ins, err := newInstruments(meter)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.emit = ins.record
	r.mu.Unlock()
	return nil
}
