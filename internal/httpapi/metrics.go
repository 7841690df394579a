package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeflow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgeflow",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgeflow",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)

	flashesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edgeflow",
			Subsystem: "device",
			Name:      "flashes_total",
			Help:      "Total successful model flash operations",
		},
	)

	inferSamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edgeflow",
			Subsystem: "device",
			Name:      "infer_samples_total",
			Help:      "Total samples inferred on the device",
		},
	)

	deviceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeflow",
			Subsystem: "device",
			Name:      "errors_total",
			Help:      "Device operation failures by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight,
		flashesTotal, inferSamplesTotal, deviceErrorsTotal)
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routePatternOrPath(r)
		method := r.Method
		httpInflight.WithLabelValues(path).Inc()
		defer httpInflight.WithLabelValues(path).Dec()

		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		statusLabel := itoa(sr.status)
		dur := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(path, method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, method, statusLabel).Observe(dur)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// IncrementFlash records one successful flash lifecycle operation.
func IncrementFlash() { flashesTotal.Inc() }

// AddInferSamples records samples served by a completed batch.
func AddInferSamples(n int) {
	if n > 0 {
		inferSamplesTotal.Add(float64(n))
	}
}

// IncrementDeviceError records a failed device operation by kind.
func IncrementDeviceError(kind string) {
	if kind == "" {
		kind = "unspecified"
	}
	deviceErrorsTotal.WithLabelValues(kind).Inc()
}

// fast integer to ascii for small set of status codes
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
