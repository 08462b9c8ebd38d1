// Package metrics exposes Prometheus counters/gauges for the messenger and
// its adapters, and a minimal /metrics + /ready HTTP surface for the daemon.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fk1018/can-messenger/internal/logging"
)

var (
	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_frames_sent_total",
		Help: "Total CAN frames written to the adapter.",
	})
	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_frames_received_total",
		Help: "Total CAN frames read from the adapter and dispatched to listener callbacks.",
	})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_frames_dropped_total",
		Help: "Total frames dropped (filter-rejected or send-queue overflow); read timeouts are not counted.",
	})
	SocketErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "can_socket_errors_total",
		Help: "Transport errors by adapter kind (socketcan, slcan, loopback).",
	}, []string{"adapter"})
	DBCDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_dbc_decode_errors_total",
		Help: "Total DBC signal decode failures.",
	})
	DBCEncodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_dbc_encode_errors_total",
		Help: "Total DBC signal encode failures.",
	})
	ListenerRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "can_listener_running",
		Help: "1 while a messenger's listen loop is active, 0 otherwise, labeled by messenger name.",
	}, []string{"messenger"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// IncSocketError increments the transport error counter for adapter.
func IncSocketError(adapter string) { SocketErrors.WithLabelValues(adapter).Inc() }

// SetListenerRunning sets the running gauge for a named messenger instance.
func SetListenerRunning(name string, running bool) {
	v := 0.0
	if running {
		v = 1.0
	}
	ListenerRunning.WithLabelValues(name).Set(v)
}

// InitBuildInfo sets the build info gauge (call once at startup) and
// pre-registers the known adapter error label series so the first error
// doesn't pay registration latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, adapter := range []string{"socketcan", "slcan", "loopback"} {
		SocketErrors.WithLabelValues(adapter).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function, defaulting to ready if
// none has been set yet.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
