package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

var (
	serviceUpMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentichat_service_up",
		Help: "Whether a backing service passed its last health check (1) or not (0).",
	}, []string{"service"})

	uploadRejectionsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentichat_upload_rejections_total",
		Help: "Image uploads rejected before reaching the completion gateway.",
	}, []string{"reason"})
)

// SetServiceUp records the outcome of a health check for the named service.
func SetServiceUp(service string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	serviceUpMetric.WithLabelValues(service).Set(v)
}

func ObserveUploadRejection(reason string) {
	uploadRejectionsMetric.WithLabelValues(reason).Inc()
}

// NewHTTPMiddleware builds request duration and size instrumentation registered against reg.
// A nil registerer uses the prometheus default.
func NewHTTPMiddleware(reg prometheus.Registerer) middleware.Middleware {
	return middleware.New(middleware.Config{
		Recorder: httpmetrics.NewRecorder(httpmetrics.Config{Registry: reg}),
	})
}

// Instrument wraps h so it is measured under the route pattern rather than the raw path,
// keeping user ids out of the label set.
func Instrument(m *middleware.Middleware, pattern string, h http.Handler) http.Handler {
	if m == nil {
		return h
	}
	return std.Handler(pattern, *m, h)
}
