package audit

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors describing the audit session
type Metrics struct {
	gatherer prometheus.Gatherer

	Recomputations *prometheus.CounterVec
	Reports        *prometheus.CounterVec

	Trials              prometheus.Gauge
	SensorUncertainty   prometheus.Gauge
	CombinedUncertainty prometheus.Gauge
	ExpandedUncertainty prometheus.Gauge
}

// NewMetrics registers the audit metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	recomputations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fsaudit_recomputations_total",
		Help: "Budget recomputations, labeled by the change that triggered them.",
	}, []string{"trigger"}), "fsaudit_recomputations_total")
	if err != nil {
		return nil, err
	}

	reports, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fsaudit_reports_total",
		Help: "Methodology report requests, labeled by outcome (ok or no_data).",
	}, []string{"result"}), "fsaudit_reports_total")
	if err != nil {
		return nil, err
	}

	gauges := make([]prometheus.Gauge, 0, 4)
	for _, opts := range []prometheus.GaugeOpts{
		{Name: "fsaudit_trials", Help: "Current number of recorded trials."},
		{Name: "fsaudit_sensor_uncertainty_meters", Help: "Current managed sensor uncertainty (us)."},
		{Name: "fsaudit_combined_uncertainty_meters", Help: "Current combined standard uncertainty (uc)."},
		{Name: "fsaudit_expanded_uncertainty_meters", Help: "Current expanded uncertainty (U)."},
	} {
		g, err := registerGauge(reg, prometheus.NewGauge(opts), opts.Name)
		if err != nil {
			return nil, err
		}
		gauges = append(gauges, g)
	}

	return &Metrics{
		gatherer:            gatherer,
		Recomputations:      recomputations,
		Reports:             reports,
		Trials:              gauges[0],
		SensorUncertainty:   gauges[1],
		CombinedUncertainty: gauges[2],
		ExpandedUncertainty: gauges[3],
	}, nil
}

// ObserveBudget records a recomputation and updates the budget gauges
func (m *Metrics) ObserveBudget(trigger string, b Budget) {
	if m == nil {
		return
	}
	m.Recomputations.WithLabelValues(trigger).Inc()
	m.Trials.Set(float64(b.TrialCount))
	m.SensorUncertainty.Set(b.SensorUncertainty)
	m.CombinedUncertainty.Set(b.CombinedUncertainty)
	m.ExpandedUncertainty.Set(b.ExpandedUncertainty)
}

// ObserveReport counts a report request by outcome
func (m *Metrics) ObserveReport(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "no_data"
	}
	m.Reports.WithLabelValues(result).Inc()
}

// Handler exposes the registered metrics in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	gatherer := m.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
