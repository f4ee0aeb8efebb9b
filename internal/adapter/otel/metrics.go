// Package otel provides OpenTelemetry instruments and spans for AgentLens.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentlens"

// Metrics holds all AgentLens metric instruments.
type Metrics struct {
	CallsRecorded  metric.Int64Counter
	CallsSkipped   metric.Int64Counter
	AppendFailures metric.Int64Counter
	QueriesServed  metric.Int64Counter
	StatsServed    metric.Int64Counter
	AppendLatency  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.CallsRecorded, err = meter.Int64Counter("agentlens.calls.recorded",
		metric.WithDescription("Number of call records committed to the history store"))
	if err != nil {
		return nil, err
	}

	m.CallsSkipped, err = meter.Int64Counter("agentlens.calls.skipped",
		metric.WithDescription("Number of call records skipped (meta tools, invalid input)"))
	if err != nil {
		return nil, err
	}

	m.AppendFailures, err = meter.Int64Counter("agentlens.appends.failed",
		metric.WithDescription("Number of appends rejected by the durable log"))
	if err != nil {
		return nil, err
	}

	m.QueriesServed, err = meter.Int64Counter("agentlens.queries.served",
		metric.WithDescription("Number of history queries served"))
	if err != nil {
		return nil, err
	}

	m.StatsServed, err = meter.Int64Counter("agentlens.stats.served",
		metric.WithDescription("Number of usage statistics requests served"))
	if err != nil {
		return nil, err
	}

	m.AppendLatency, err = meter.Float64Histogram("agentlens.append.duration_seconds",
		metric.WithDescription("Durable append latency in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
