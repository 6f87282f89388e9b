package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	jobCounter    otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
	pairsScored   otelmetric.Int64Counter
	digestCounter otelmetric.Int64Counter
	aiFallbacks   otelmetric.Int64Counter
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	jobCounter, _ := meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)

	jobDuration, _ := meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	pairsScored, _ := meter.Int64Counter(
		"matching.pairs_scored",
		otelmetric.WithDescription("Number of member pairs scored"),
	)

	digestCounter, _ := meter.Int64Counter(
		"digest.decisions",
		otelmetric.WithDescription("Digest decisions by status"),
	)

	aiFallbacks, _ := meter.Int64Counter(
		"ai.fallbacks",
		otelmetric.WithDescription("AI enrichment failures handled by rule-based fallback"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		jobCounter:    jobCounter,
		jobDuration:   jobDuration,
		pairsScored:   pairsScored,
		digestCounter: digestCounter,
		aiFallbacks:   aiFallbacks,
	}
}

func (o *Observability) RecordJobProcessed(ctx context.Context, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordPairsScored(ctx context.Context, n int64, policy string) {
	if o.pairsScored != nil {
		o.pairsScored.Add(ctx, n, otelmetric.WithAttributes(
			attribute.String("policy", policy),
		))
	}
}

func (o *Observability) RecordDigestDecision(ctx context.Context, status string) {
	if o.digestCounter != nil {
		o.digestCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordAIFallback(ctx context.Context, reason string) {
	if o.aiFallbacks != nil {
		o.aiFallbacks.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("reason", reason),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
