package audit

import (
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObserveBudget(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	b, err := ComputeBudget([]float64{5.00, 5.02, 4.98}, []ErrorSource{ManagedSource(0.3)}, CoverageK2)
	if err != nil {
		t.Fatalf("ComputeBudget: %v", err)
	}
	m.ObserveBudget("trial_added", b)
	m.ObserveBudget("trial_added", b)
	m.ObserveBudget("settings", b)

	if got := testutil.ToFloat64(m.Recomputations.WithLabelValues("trial_added")); got != 2 {
		t.Errorf("fsaudit_recomputations_total{trigger=trial_added} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Trials); got != 3 {
		t.Errorf("fsaudit_trials = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.SensorUncertainty); math.Abs(got-0.3) > 1e-12 {
		t.Errorf("fsaudit_sensor_uncertainty_meters = %v, want 0.3", got)
	}
	if got := testutil.ToFloat64(m.ExpandedUncertainty); got != b.ExpandedUncertainty {
		t.Errorf("fsaudit_expanded_uncertainty_meters = %v, want %v", got, b.ExpandedUncertainty)
	}
}

func TestMetrics_ObserveReport(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.ObserveReport(nil)
	m.ObserveReport(ErrNoData)
	m.ObserveReport(ErrNoData)

	if got := testutil.ToFloat64(m.Reports.WithLabelValues("ok")); got != 1 {
		t.Errorf("reports{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Reports.WithLabelValues("no_data")); got != 2 {
		t.Errorf("reports{no_data} = %v, want 2", got)
	}
}

func TestMetrics_ReRegisterReturnsExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	second, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("second NewMetrics: %v", err)
	}

	first.Recomputations.WithLabelValues("startup").Inc()
	if got := testutil.ToFloat64(second.Recomputations.WithLabelValues("startup")); got != 1 {
		t.Errorf("collectors not shared across registrations: %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBudget("startup", Budget{})
	m.ObserveReport(nil)
}

func TestMetrics_Handler(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.ObserveBudget("startup", Budget{TrialCount: 4})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "fsaudit_trials 4") {
		t.Errorf("metrics output missing fsaudit_trials:\n%s", body)
	}
}
