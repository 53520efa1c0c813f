package netsync

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/Scrimzay/artillery/internal/netsync"

type metrics struct {
	received metric.Int64Counter
	sent     metric.Int64Counter
	dropped  metric.Int64Counter
	turns    metric.Int64Counter
	resyncs  metric.Int64Counter
}

func newMetrics(m metric.Meter) (*metrics, error) {
	if m == nil {
		m = otel.Meter(instrumentationName)
	}
	var (
		out metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&out.received, "netsync.messages.received", "Messages decoded from peers"},
		{&out.sent, "netsync.messages.sent", "Messages handed to the transport"},
		{&out.dropped, "netsync.messages.dropped", "Messages or fields ignored as malformed or out of turn"},
		{&out.turns, "netsync.turns.completed", "Turns every peer acknowledged"},
		{&out.resyncs, "netsync.resyncs", "Full models resent after a digest mismatch"},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}
	return &out, nil
}

func kindAttr(k Kind) metric.AddOption {
	return metric.WithAttributes(attribute.String("kind", k.String()))
}

func (m *metrics) count(c metric.Int64Counter, opts ...metric.AddOption) {
	c.Add(context.Background(), 1, opts...)
}
