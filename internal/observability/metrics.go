// Package observability provides OpenTelemetry metrics, the Prometheus
// scrape endpoint, and health handlers for the pipeline and worker
// processes.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal    = "logfang.requests.total"
	metricRequestDuration  = "logfang.request.duration.seconds"
	metricErrorsTotal      = "logfang.errors.total"
	metricInflightRequests = "logfang.inflight.requests"

	metricRowsExtracted  = "logfang.rows.extracted.total"
	metricRowsLoaded     = "logfang.rows.loaded.total"
	metricPointsEmbedded = "logfang.points.embedded.total"
	metricJobsProcessed  = "logfang.jobs.processed.total"

	attrOp     = "op"
	attrStream = "stream"
	attrStatus = "status"

	statusError = "error"
)

// StatusOK and StatusError are the request status values.
const (
	StatusOK    = "ok"
	StatusError = statusError
)

// durationBucketBoundaries covers 10ms to 600s: queue pops are sub-second,
// full-table pipeline runs take minutes.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// REDMetrics holds the OTel instruments for Rate, Error, Duration metrics.
type REDMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
}

// NewREDMetrics creates RED metric instruments from the given meter.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	b := newMetricBuilder(mt)

	rm := &REDMetrics{
		requestsTotal:    b.counter(metricRequestsTotal, "Total number of operations", "{request}"),
		requestDuration:  b.histogram(metricRequestDuration, "Operation duration in seconds", "s", durationBucketBoundaries...),
		errorsTotal:      b.counter(metricErrorsTotal, "Total number of errors", "{error}"),
		inflightRequests: b.upDownCounter(metricInflightRequests, "Number of in-flight operations", "{request}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return rm, nil
}

// RecordRequest records a completed operation with its status and duration.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	rm.requestsTotal.Add(ctx, 1, attrs)
	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)

	if status == statusError {
		rm.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrOp, op),
		))
	}
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflightRequests.Add(ctx, 1, attrs)

	return func() {
		rm.inflightRequests.Add(ctx, -1, attrs)
	}
}

// ThroughputMetrics counts the domain units flowing through the system:
// extracted rows, loaded rows, embedded points, and processed jobs.
type ThroughputMetrics struct {
	rowsExtracted  metric.Int64Counter
	rowsLoaded     metric.Int64Counter
	pointsEmbedded metric.Int64Counter
	jobsProcessed  metric.Int64Counter
}

// NewThroughputMetrics creates throughput instruments from the given meter.
func NewThroughputMetrics(mt metric.Meter) (*ThroughputMetrics, error) {
	b := newMetricBuilder(mt)

	tm := &ThroughputMetrics{
		rowsExtracted:  b.counter(metricRowsExtracted, "Rows read from source tables", "{row}"),
		rowsLoaded:     b.counter(metricRowsLoaded, "Rows written to the master table", "{row}"),
		pointsEmbedded: b.counter(metricPointsEmbedded, "Points upserted into the vector index", "{point}"),
		jobsProcessed:  b.counter(metricJobsProcessed, "Embedding jobs processed", "{job}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return tm, nil
}

// RecordPage records one processed pipeline page for a stream.
func (tm *ThroughputMetrics) RecordPage(ctx context.Context, streamID string, extracted, loaded int64) {
	attrs := metric.WithAttributes(attribute.String(attrStream, streamID))

	tm.rowsExtracted.Add(ctx, extracted, attrs)
	tm.rowsLoaded.Add(ctx, loaded, attrs)
}

// RecordJob records one processed embedding job.
func (tm *ThroughputMetrics) RecordJob(ctx context.Context, table string, points int64, status string) {
	tm.jobsProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStream, table),
		attribute.String(attrStatus, status),
	))
	tm.pointsEmbedded.Add(ctx, points, metric.WithAttributes(
		attribute.String(attrStream, table),
	))
}
