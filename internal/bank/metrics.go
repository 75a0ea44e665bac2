package bank

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("mechbank.bank")

var (
	// mutationsTotal counts mutations by operation and outcome
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mechbank_mutations_total",
		Help: "Total mutations by operation and outcome",
	}, []string{"operation", "outcome"})

	// bumpsTotal counts committed version bumps by kind
	bumpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mechbank_version_bumps_total",
		Help: "Committed version bumps by kind",
	}, []string{"kind"})

	// commitDuration tracks the record-plus-changelog transaction latency
	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mechbank_commit_duration_seconds",
		Help:    "Commit transaction duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	})

	// quarantined is the number of records currently quarantined
	quarantined = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mechbank_quarantined_records",
		Help: "Records whose changelog does not replay to their stored version",
	})
)

// Outcome labels for mutationsTotal.
const (
	outcomeCommitted    = "committed"
	outcomeNoOp         = "noop"
	outcomeRejected     = "rejected"
	outcomeInconsistent = "inconsistent"
	outcomeError        = "error"
)

// startSpan opens a span for a bank operation on one id.
func startSpan(ctx context.Context, op, id string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "bank."+op,
		trace.WithAttributes(attribute.String("mechanism.id", id)),
	)
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
