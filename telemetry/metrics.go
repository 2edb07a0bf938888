// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesIngested    *prometheus.CounterVec // per platform
	MessagesDropped     *prometheus.CounterVec // decode-local failures, per platform
	DuplicatesCollapsed prometheus.Counter
	Reconnects          *prometheus.CounterVec // per platform
	PollCycles          prometheus.Counter
	PollErrors          *prometheus.CounterVec // per error class

	// Histograms (seconds)
	PollDuration prometheus.Observer

	// Gauges
	StoreSizeGauge    prometheus.Gauge
	ConnectedGauge    *prometheus.GaugeVec // 1=connected,0=disconnected per platform
	PollIntervalGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_messages_ingested_total", Help: "Canonical messages accepted into the retention store"}, []string{"platform"})
		MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_messages_dropped_total", Help: "Inbound protocol events skipped because they could not be decoded"}, []string{"platform"})
		DuplicatesCollapsed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_duplicates_collapsed_total", Help: "Messages whose id already existed in the window (replaced, not appended)"})
		Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_reconnects_total", Help: "Transport reconnect attempts"}, []string{"platform"})
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_poll_cycles_total", Help: "Continuation poll requests issued"})
		PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_poll_errors_total", Help: "Poll failures by error class"}, []string{"class"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_poll_duration_seconds", Help: "Continuation poll round-trip seconds", Buckets: prometheus.DefBuckets})
		StoreSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_store_size", Help: "Messages currently held in the retention window"})
		ConnectedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chat_platform_connected", Help: "Connection status per platform, connected=1 disconnected=0"}, []string{"platform"})
		PollIntervalGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_poll_interval_seconds", Help: "Current adaptive polling interval"})
	})
}

// AddIngested counts an accepted message for a platform.
func AddIngested(platform string) {
	if MessagesIngested != nil {
		MessagesIngested.WithLabelValues(platform).Inc()
	}
}

// AddDropped counts a skipped inbound event for a platform.
func AddDropped(platform string) {
	if MessagesDropped != nil {
		MessagesDropped.WithLabelValues(platform).Inc()
	}
}

// IncDuplicate counts a collapsed duplicate id.
func IncDuplicate() {
	if DuplicatesCollapsed != nil {
		DuplicatesCollapsed.Inc()
	}
}

// IncReconnect counts a reconnect attempt for a platform.
func IncReconnect(platform string) {
	if Reconnects != nil {
		Reconnects.WithLabelValues(platform).Inc()
	}
}

// IncPollCycle counts one continuation poll request.
func IncPollCycle() {
	if PollCycles != nil {
		PollCycles.Inc()
	}
}

// IncPollError counts a poll failure by error class.
func IncPollError(class string) {
	if PollErrors != nil {
		PollErrors.WithLabelValues(class).Inc()
	}
}

// SetStoreSize records the current retention window size.
func SetStoreSize(n int) {
	if StoreSizeGauge != nil {
		StoreSizeGauge.Set(float64(n))
	}
}

// SetConnected sets the per-platform connection gauge.
func SetConnected(platform string, connected bool) {
	if ConnectedGauge != nil {
		v := 0.0
		if connected {
			v = 1.0
		}
		ConnectedGauge.WithLabelValues(platform).Set(v)
	}
}

// SetPollInterval records the current adaptive polling interval.
func SetPollInterval(d time.Duration) {
	if PollIntervalGauge != nil {
		PollIntervalGauge.Set(d.Seconds())
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
