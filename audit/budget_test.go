package audit

import (
	"errors"
	"math"
	"testing"
)

func TestRSS(t *testing.T) {
	tests := []struct {
		values []float64
		want   float64
	}{
		{nil, 0},
		{[]float64{0.2}, 0.2},
		{[]float64{3, 4}, 5},
		{[]float64{1, 2, 2}, 3},
	}

	for _, tt := range tests {
		if got := RSS(tt.values...); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("RSS(%v) = %v, want %v", tt.values, got, tt.want)
		}
	}

	if a, b := RSS(0.1, 0.25, 0.03), RSS(0.03, 0.1, 0.25); math.Abs(a-b) > 1e-15 {
		t.Errorf("RSS depends on order: %v vs %v", a, b)
	}
}

func TestComputeBudget(t *testing.T) {
	trials := []float64{5.00, 5.02, 4.98}
	sources := []ErrorSource{ManagedSource(0.15 * math.Sqrt2)}

	b, err := ComputeBudget(trials, sources, CoverageK2)
	if err != nil {
		t.Fatalf("ComputeBudget: %v", err)
	}

	wantUC := math.Sqrt(0.045 + 0.0004)
	if b.TrialCount != 3 {
		t.Errorf("TrialCount = %d, want 3", b.TrialCount)
	}
	if math.Abs(b.CombinedUncertainty-wantUC) > 1e-9 {
		t.Errorf("uc = %v, want %v", b.CombinedUncertainty, wantUC)
	}
	if math.Abs(b.ExpandedUncertainty-2*wantUC) > 1e-9 {
		t.Errorf("U = %v, want %v", b.ExpandedUncertainty, 2*wantUC)
	}
	if b.Confidence != "95.4%" {
		t.Errorf("Confidence = %q, want 95.4%%", b.Confidence)
	}
	if got := b.Result(); got != "5.0000m ± 0.4261m" {
		t.Errorf("Result() = %q", got)
	}
}

func TestComputeBudget_SensorCombinesAllSources(t *testing.T) {
	sources := []ErrorSource{ManagedSource(0.3), UserSource("Lens", 0.4)}

	b, err := ComputeBudget(nil, sources, CoverageK1)
	if err != nil {
		t.Fatalf("ComputeBudget: %v", err)
	}
	if math.Abs(b.SensorUncertainty-0.5) > 1e-12 {
		t.Errorf("us = %v, want 0.5", b.SensorUncertainty)
	}
	// No trials: uo contributes nothing and uc equals us.
	if math.Abs(b.CombinedUncertainty-0.5) > 1e-12 {
		t.Errorf("uc = %v, want 0.5", b.CombinedUncertainty)
	}
	if b.HasData || !b.InsufficientTrials {
		t.Errorf("HasData = %v, InsufficientTrials = %v", b.HasData, b.InsufficientTrials)
	}
}

func TestComputeBudget_SourceOrderDoesNotMatter(t *testing.T) {
	trials := []float64{5.00, 5.02, 4.98}
	forward := []ErrorSource{ManagedSource(0.2121), UserSource("Lens", 0.05), UserSource("Height", 0.01)}
	backward := []ErrorSource{UserSource("Height", 0.01), UserSource("Lens", 0.05), ManagedSource(0.2121)}

	a, err := ComputeBudget(trials, forward, CoverageK1)
	if err != nil {
		t.Fatalf("ComputeBudget: %v", err)
	}
	b, err := ComputeBudget([]float64{4.98, 5.00, 5.02}, backward, CoverageK1)
	if err != nil {
		t.Fatalf("ComputeBudget: %v", err)
	}
	if math.Abs(a.SensorUncertainty-b.SensorUncertainty) > 1e-15 {
		t.Errorf("us depends on source order: %v vs %v", a.SensorUncertainty, b.SensorUncertainty)
	}
	if math.Abs(a.Mean-b.Mean) > 1e-12 {
		t.Errorf("mean depends on trial order: %v vs %v", a.Mean, b.Mean)
	}
	if math.Abs(a.ExpandedUncertainty-b.ExpandedUncertainty) > 1e-12 {
		t.Errorf("U depends on order: %v vs %v", a.ExpandedUncertainty, b.ExpandedUncertainty)
	}
}

func TestComputeBudget_ConfidenceLabels(t *testing.T) {
	want := map[CoverageFactor]string{CoverageK1: "68.2%", CoverageK2: "95.4%", CoverageK3: "99.7%"}
	for k, label := range want {
		b, err := ComputeBudget([]float64{1, 2}, nil, k)
		if err != nil {
			t.Fatalf("k=%d: %v", k, err)
		}
		if b.Confidence != label {
			t.Errorf("k=%d confidence = %q, want %q", k, b.Confidence, label)
		}
		if math.Abs(b.ExpandedUncertainty-float64(k)*b.CombinedUncertainty) > 1e-12 {
			t.Errorf("k=%d: U is not k*uc", k)
		}
	}

	for _, tc := range []struct {
		trials  []float64
		sources []ErrorSource
	}{
		{[]float64{1, 2}, nil},
		{[]float64{1, 2}, []ErrorSource{ManagedSource(3)}},
		{[]float64{5.00, 5.02, 4.98}, []ErrorSource{ManagedSource(0.2121), UserSource("Lens", 0.05)}},
		{[]float64{7}, []ErrorSource{ManagedSource(0.4)}},
	} {
		b, err := ComputeBudget(tc.trials, tc.sources, CoverageK1)
		if err != nil {
			t.Fatalf("ComputeBudget: %v", err)
		}
		if b.CombinedUncertainty < math.Max(b.SensorUncertainty, b.ObserverUncertainty) {
			t.Errorf("uc = %v below max(us=%v, uo=%v)", b.CombinedUncertainty, b.SensorUncertainty, b.ObserverUncertainty)
		}
	}
}

func TestComputeBudget_InvalidCoverageFactor(t *testing.T) {
	for _, k := range []CoverageFactor{0, 4, -1} {
		if _, err := ComputeBudget(nil, nil, k); !errors.Is(err, ErrInvalidCoverageFactor) {
			t.Errorf("k=%d: err = %v, want ErrInvalidCoverageFactor", k, err)
		}
	}
}

func TestNewCoverageFactor(t *testing.T) {
	for _, k := range []int{1, 2, 3} {
		if _, err := NewCoverageFactor(k); err != nil {
			t.Errorf("NewCoverageFactor(%d): %v", k, err)
		}
	}
	for _, k := range []int{0, 4, 10} {
		if _, err := NewCoverageFactor(k); !errors.Is(err, ErrInvalidCoverageFactor) {
			t.Errorf("NewCoverageFactor(%d) err = %v", k, err)
		}
	}
}
