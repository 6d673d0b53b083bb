package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/api/v1/tle/metadata", "/api/v1/tle/metadata"},
		{"/api/v1/snapshot", "/api/v1/snapshot"},
		{"/api/v1/stream/look", "/api/v1/stream/look"},

		// Parameterized routes collapse to one label each.
		{"/api/v1/look/25544", "/api/v1/look/{norad_id}"},
		{"/api/v1/look/1", "/api/v1/look/{norad_id}"},
		{"/api/v1/groundtrack/33591", "/api/v1/groundtrack/{norad_id}"},
		{"/api/v1/passes/99999", "/api/v1/passes/{norad_id}"},

		// Non-numeric IDs and unknown/bot paths collapse to "other".
		{"/api/v1/look/iss", "other"},
		{"/api/v1/look/", "other"},
		{"/api/v1/passes/25544/extra", "other"},
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
		{"/favicon.ico", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 unique NORAD IDs produce
// exactly 1 distinct path label, not 100.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[normalizeRoute("/api/v1/look/"+strconv.Itoa(25000+i))] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

func TestMiddleware(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	counter := httpRequestsTotal.WithLabelValues("/api/v1/look/{norad_id}", http.MethodGet, "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"25544", "33591"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/look/"+id, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("request counter grew by %v, want 2", got)
	}
}

func TestRecorders(t *testing.T) {
	success := propagationResults.WithLabelValues("success")
	failed := propagationResults.WithLabelValues("error")
	zeroRange := degenerateGeometry.WithLabelValues("zero_range")

	s0, f0 := testutil.ToFloat64(success), testutil.ToFloat64(failed)
	l0 := testutil.ToFloat64(lookAngleEvaluations)
	z0 := testutil.ToFloat64(zeroRange)

	RecordPropagation(20*time.Millisecond, 7, 2)
	RecordLookAngles(14)
	RecordDegenerate("zero_range")
	SetDatasetSize(9)
	SetDatasetAge(3600)

	if got := testutil.ToFloat64(success) - s0; got != 7 {
		t.Errorf("success delta = %v, want 7", got)
	}
	if got := testutil.ToFloat64(failed) - f0; got != 2 {
		t.Errorf("error delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(lookAngleEvaluations) - l0; got != 14 {
		t.Errorf("look angle delta = %v, want 14", got)
	}
	if got := testutil.ToFloat64(zeroRange) - z0; got != 1 {
		t.Errorf("degenerate delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tleDatasetCount); got != 9 {
		t.Errorf("dataset gauge = %v, want 9", got)
	}
	if got := testutil.ToFloat64(tleDatasetAge); got != 3600 {
		t.Errorf("dataset age gauge = %v, want 3600", got)
	}
}

func sampleCount(t *testing.T) (uint64, float64) {
	t.Helper()
	var m dto.Metric
	if err := solverIterations.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}

func TestObserveSolverIterations(t *testing.T) {
	n0, sum0 := sampleCount(t)
	ObserveSolverIterations(4)
	ObserveSolverIterations(10)
	n1, sum1 := sampleCount(t)
	if n1-n0 != 2 {
		t.Errorf("sample count grew by %d, want 2", n1-n0)
	}
	if sum1-sum0 != 14 {
		t.Errorf("sample sum grew by %v, want 14", sum1-sum0)
	}
}
