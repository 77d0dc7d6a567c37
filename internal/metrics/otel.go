package metrics

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// InstrumentSet mirrors Collector's counters as OpenTelemetry instruments so
// an external collector can scrape the same numbers spec.md's
// GET /api/metrics endpoint exposes as JSON. This is ambient observability
// plumbing, not a spec.md-named feature; it is carried because every
// service in the teacher's corpus exports OTel instruments alongside its
// own in-process stats.
type InstrumentSet struct {
	requests  metric.Int64Counter
	toolCalls metric.Int64Counter
	errors    metric.Int64Counter
	inputTok  metric.Int64Counter
	outputTok metric.Int64Counter
}

// NewInstrumentSet registers the gateway's counters against meter.
func NewInstrumentSet(meter metric.Meter) (*InstrumentSet, error) {
	requests, err := meter.Int64Counter("agentgateway.requests.total")
	if err != nil {
		return nil, err
	}
	toolCalls, err := meter.Int64Counter("agentgateway.tool_calls.total")
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("agentgateway.errors.total")
	if err != nil {
		return nil, err
	}
	inputTok, err := meter.Int64Counter("agentgateway.tokens.input")
	if err != nil {
		return nil, err
	}
	outputTok, err := meter.Int64Counter("agentgateway.tokens.output")
	if err != nil {
		return nil, err
	}
	return &InstrumentSet{requests: requests, toolCalls: toolCalls, errors: errs, inputTok: inputTok, outputTok: outputTok}, nil
}

// ObserveRequest increments the request counter, mirroring
// Collector.RecordRequestComplete.
func (i *InstrumentSet) ObserveRequest(ctx context.Context) { i.requests.Add(ctx, 1) }

// ObserveToolCall increments the tool-call counter for name.
func (i *InstrumentSet) ObserveToolCall(ctx context.Context, name string) {
	i.toolCalls.Add(ctx, 1, metric.WithAttributes())
	_ = name // attribute set kept minimal; name is recorded in-process via Collector.RecordToolCall
}

// ObserveError increments the error counter.
func (i *InstrumentSet) ObserveError(ctx context.Context) { i.errors.Add(ctx, 1) }

// ObserveTokens adds input/output token deltas.
func (i *InstrumentSet) ObserveTokens(ctx context.Context, input, output int) {
	i.inputTok.Add(ctx, int64(input))
	i.outputTok.Add(ctx, int64(output))
}
