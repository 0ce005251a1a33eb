// Package observe provides application-wide observability primitives for
// DermaLive: OpenTelemetry metrics, tracing setup, and the Prometheus
// exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// via the Prometheus bridge configured in [InitProvider], so they can be
// scraped from the standard /metrics endpoint. Tests should use [NewMetrics]
// with a private [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all DermaLive metrics.
const meterName = "github.com/dermalive/dermalive"

// Metrics holds all OpenTelemetry metric instruments for the voice pipeline.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// SessionDuration tracks wall-clock length of live voice sessions in seconds.
	SessionDuration metric.Float64Histogram

	// FramesForwarded counts microphone frames delivered to a session.
	FramesForwarded metric.Int64Counter

	// FramesDropped counts microphone frames discarded because no session
	// was attached or the session rejected them.
	FramesDropped metric.Int64Counter

	// AudioDeltas counts inbound audio deltas scheduled for playback.
	AudioDeltas metric.Int64Counter

	// DecodeErrors counts inbound audio deltas dropped as malformed.
	DecodeErrors metric.Int64Counter

	// TurnsCommitted counts completed voice turns flushed to the
	// conversation log.
	TurnsCommitted metric.Int64Counter

	// Interruptions counts barge-in events that flushed scheduled playback.
	Interruptions metric.Int64Counter

	// SessionErrors counts sessions torn down by a remote error. Recorded
	// with a "reason" attribute via [Metrics.RecordSessionError].
	SessionErrors metric.Int64Counter

	// ActiveSessions tracks the number of currently open live voice sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// NewMetrics creates all instruments on the given provider. Pass nil to use
// the global OTel meter provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	var (
		m   Metrics
		err error
	)

	if m.SessionDuration, err = meter.Float64Histogram(
		"dermalive.session.duration",
		metric.WithDescription("Wall-clock duration of live voice sessions."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.FramesForwarded, err = meter.Int64Counter(
		"dermalive.capture.frames_forwarded",
		metric.WithDescription("Microphone frames forwarded to a live session."),
	); err != nil {
		return nil, err
	}

	if m.FramesDropped, err = meter.Int64Counter(
		"dermalive.capture.frames_dropped",
		metric.WithDescription("Microphone frames dropped without a live session."),
	); err != nil {
		return nil, err
	}

	if m.AudioDeltas, err = meter.Int64Counter(
		"dermalive.audio.deltas",
		metric.WithDescription("Inbound audio deltas scheduled for playback."),
	); err != nil {
		return nil, err
	}

	if m.DecodeErrors, err = meter.Int64Counter(
		"dermalive.audio.decode_errors",
		metric.WithDescription("Inbound audio deltas dropped as malformed."),
	); err != nil {
		return nil, err
	}

	if m.TurnsCommitted, err = meter.Int64Counter(
		"dermalive.turns.committed",
		metric.WithDescription("Completed voice turns flushed to the conversation log."),
	); err != nil {
		return nil, err
	}

	if m.Interruptions, err = meter.Int64Counter(
		"dermalive.session.interruptions",
		metric.WithDescription("Barge-in events that flushed scheduled playback."),
	); err != nil {
		return nil, err
	}

	if m.SessionErrors, err = meter.Int64Counter(
		"dermalive.session.errors",
		metric.WithDescription("Sessions torn down by a remote error."),
	); err != nil {
		return nil, err
	}

	if m.ActiveSessions, err = meter.Int64UpDownCounter(
		"dermalive.active_sessions",
		metric.WithDescription("Currently open live voice sessions."),
	); err != nil {
		return nil, err
	}

	return &m, nil
}

// RecordFrame counts one capture frame as forwarded to a session or dropped.
func (m *Metrics) RecordFrame(ctx context.Context, forwarded bool) {
	if forwarded {
		m.FramesForwarded.Add(ctx, 1)
		return
	}
	m.FramesDropped.Add(ctx, 1)
}

// RecordSessionError increments the session error counter with a reason label.
func (m *Metrics) RecordSessionError(ctx context.Context, reason string) {
	m.SessionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide Metrics instance on the global OTel
// meter provider. Register the real provider with [InitProvider] before the
// first call.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(nil)
		if err != nil {
			// Instrument creation only fails on invalid names, which are
			// compile-time constants here.
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
