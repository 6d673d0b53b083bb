package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satview_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "satview_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	lookAngleEvaluations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satview_look_angle_evaluations_total",
			Help: "Total number of observer to satellite look angles computed.",
		},
	)

	degenerateGeometry = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satview_degenerate_geometry_total",
			Help: "Look angle evaluations with undefined geometry, by kind.",
		},
		[]string{"kind"},
	)

	solverIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "satview_geodetic_solver_iterations",
			Help:    "Latitude updates performed per geodetic solve.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	propagationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "satview_propagation_duration_seconds",
			Help:    "Time to propagate and observe a full dataset at one instant.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	propagationResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satview_propagation_results_total",
			Help: "Satellite propagations by result.",
		},
		[]string{"result"},
	)

	tleDatasetCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satview_tle_dataset_count",
			Help: "Number of element sets in the current dataset.",
		},
	)

	streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satview_stream_connections_total",
			Help: "Look angle stream connects and disconnects.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satview_streams_active",
			Help: "Open look angle streams.",
		},
	)

	streamMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satview_stream_messages_total",
			Help: "SSE data messages sent.",
		},
	)

	streamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satview_stream_bytes_total",
			Help: "Bytes written to look angle streams.",
		},
	)

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satview_stream_errors_total",
			Help: "Look angle stream errors by reason.",
		},
		[]string{"reason"},
	)

	tleDatasetAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satview_tle_dataset_age_seconds",
			Help: "Seconds since the current dataset was fetched.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		lookAngleEvaluations,
		degenerateGeometry,
		solverIterations,
		propagationDuration,
		propagationResults,
		tleDatasetCount,
		tleDatasetAge,
		streamConnections,
		streamsActive,
		streamMessages,
		streamBytes,
		streamErrors,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one dataset evaluation.
func RecordPropagation(d time.Duration, success, failed int) {
	propagationDuration.Observe(d.Seconds())
	propagationResults.WithLabelValues("success").Add(float64(success))
	propagationResults.WithLabelValues("error").Add(float64(failed))
}

// RecordLookAngles adds n computed look angles.
func RecordLookAngles(n int) {
	lookAngleEvaluations.Add(float64(n))
}

// RecordDegenerate counts one degenerate look angle of the given kind.
func RecordDegenerate(kind string) {
	degenerateGeometry.WithLabelValues(kind).Inc()
}

// ObserveSolverIterations records the iteration count of one geodetic solve.
func ObserveSolverIterations(n int) {
	solverIterations.Observe(float64(n))
}

// SetDatasetSize sets the current dataset's element set count.
func SetDatasetSize(n int) {
	tleDatasetCount.Set(float64(n))
}

// SetDatasetAge sets the current dataset's age in seconds.
func SetDatasetAge(seconds float64) {
	tleDatasetAge.Set(seconds)
}

// StreamConnected records a new stream.
func StreamConnected() {
	streamConnections.WithLabelValues("connect").Inc()
	streamsActive.Inc()
}

// StreamDisconnected records a closed stream.
func StreamDisconnected() {
	streamConnections.WithLabelValues("disconnect").Inc()
	streamsActive.Dec()
}

// IncStreamMessages counts one SSE data message.
func IncStreamMessages() {
	streamMessages.Inc()
}

// AddStreamBytes counts n bytes written to a stream.
func AddStreamBytes(n int) {
	streamBytes.Add(float64(n))
}

// IncStreamErrors counts a stream error of the given reason.
func IncStreamErrors(reason string) {
	streamErrors.WithLabelValues(reason).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through so streaming handlers work behind the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

var exactRoutes = map[string]bool{
	"/":                    true,
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
	"/api/v1/tle/metadata": true,
	"/api/v1/snapshot":     true,
	"/api/v1/stream/look":  true,
}

// Routes taking a trailing NORAD ID.
var noradRoutes = []string{
	"/api/v1/look/",
	"/api/v1/groundtrack/",
	"/api/v1/passes/",
}

// normalizeRoute maps a request path to a bounded label set so that NORAD
// IDs and scanner traffic do not create new series.
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	for _, prefix := range noradRoutes {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}
		if _, err := strconv.Atoi(rest); err == nil {
			return prefix + "{norad_id}"
		}
	}
	return "other"
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
