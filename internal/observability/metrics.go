package observability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sanazindustrial/PROFGINE-sub004/services/orchestrator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/sanazindustrial/PROFGINE-sub004/internal/observability"

// ProviderStats counts what happened to one provider across dispatches
type ProviderStats struct {
	Provider string `json:"provider"`
	Served   int64  `json:"served"`
	Failed   int64  `json:"failed"`
	Skipped  int64  `json:"skipped"`
}

// DispatchStats is a point-in-time copy of the collected metrics
type DispatchStats struct {
	Dispatches   int64           `json:"dispatches"`
	Directed     int64           `json:"directed"`
	Failures     int64           `json:"failures"`
	AvgLatencyMs float64         `json:"avgLatencyMs"`
	Providers    []ProviderStats `json:"providers"`
	Since        time.Time       `json:"since"`
}

// DispatchMetrics records dispatch events. It implements orchestrator.Recorder.
type DispatchMetrics struct {
	mu           sync.Mutex
	dispatches   int64
	directed     int64
	failures     int64
	totalLatency time.Duration
	providers    map[string]*ProviderStats
	since        time.Time

	count   metric.Int64Counter
	latency metric.Float64Histogram
	attempt metric.Int64Counter
}

// NewDispatchMetrics creates the collector and its instruments on the global meter provider
func NewDispatchMetrics(logger *zap.Logger) *DispatchMetrics {
	m := &DispatchMetrics{
		providers: make(map[string]*ProviderStats),
		since:     time.Now().UTC(),
	}

	meter := otel.Meter(meterName)
	var err error
	if m.count, err = meter.Int64Counter("ai.dispatch.count",
		metric.WithDescription("Dispatches by outcome")); err != nil {
		logger.Warn("failed to create dispatch counter", zap.Error(err))
	}
	if m.latency, err = meter.Float64Histogram("ai.dispatch.latency",
		metric.WithDescription("Time until a stream was opened or the dispatch failed"),
		metric.WithUnit("ms")); err != nil {
		logger.Warn("failed to create latency histogram", zap.Error(err))
	}
	if m.attempt, err = meter.Int64Counter("ai.provider.attempts",
		metric.WithDescription("Provider attempts by result")); err != nil {
		logger.Warn("failed to create attempt counter", zap.Error(err))
	}

	return m
}

// RecordDispatch implements orchestrator.Recorder
func (m *DispatchMetrics) RecordDispatch(ctx context.Context, event orchestrator.Event) {
	outcome := "succeeded"
	if event.Err != nil {
		outcome = "failed"
	}
	mode := "fallback"
	if event.Directed {
		mode = "directed"
	}

	m.mu.Lock()
	m.dispatches++
	if event.Directed {
		m.directed++
	}
	if event.Err != nil {
		m.failures++
	}
	m.totalLatency += event.Latency
	if event.Err == nil && event.Provider != "" {
		m.provider(event.Provider).Served++
	}
	for _, a := range event.Attempts {
		m.provider(a.Provider).Failed++
	}
	for _, name := range event.Skipped {
		m.provider(name).Skipped++
	}
	m.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("outcome", outcome), attribute.String("mode", mode))
	if m.count != nil {
		m.count.Add(ctx, 1, attrs)
	}
	if m.latency != nil {
		m.latency.Record(ctx, float64(event.Latency.Microseconds())/1000, attrs)
	}
	if m.attempt != nil {
		for _, a := range event.Attempts {
			m.attempt.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", a.Provider), attribute.String("result", "failed")))
		}
		if event.Err == nil && event.Provider != "" {
			m.attempt.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", event.Provider), attribute.String("result", "served")))
		}
	}
}

// provider must be called with mu held
func (m *DispatchMetrics) provider(name string) *ProviderStats {
	s, ok := m.providers[name]
	if !ok {
		s = &ProviderStats{Provider: name}
		m.providers[name] = s
	}
	return s
}

// Snapshot returns a copy of the collected counters, providers sorted by name
func (m *DispatchMetrics) Snapshot() DispatchStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := DispatchStats{
		Dispatches: m.dispatches,
		Directed:   m.directed,
		Failures:   m.failures,
		Providers:  make([]ProviderStats, 0, len(m.providers)),
		Since:      m.since,
	}
	if m.dispatches > 0 {
		stats.AvgLatencyMs = float64(m.totalLatency.Milliseconds()) / float64(m.dispatches)
	}
	for _, s := range m.providers {
		stats.Providers = append(stats.Providers, *s)
	}
	sort.Slice(stats.Providers, func(i, j int) bool {
		return stats.Providers[i].Provider < stats.Providers[j].Provider
	})
	return stats
}
