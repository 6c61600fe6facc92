package audit

import (
	"errors"
	"math"
	"testing"
)

func TestComputeObserverStats(t *testing.T) {
	tests := []struct {
		name         string
		values       []float64
		wantMean     float64
		wantUO       float64
		wantHasData  bool
		insufficient bool
	}{
		{"empty", nil, 0, 0, false, true},
		{"single", []float64{3.5}, 3.5, 0, true, true},
		{"two", []float64{1, 3}, 2, math.Sqrt2, true, false},
		{"three", []float64{5.00, 5.02, 4.98}, 5.0, 0.02, true, false},
		{"identical", []float64{2, 2, 2, 2}, 2, 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ComputeObserverStats(tt.values)
			if s.Count != len(tt.values) {
				t.Errorf("Count = %d, want %d", s.Count, len(tt.values))
			}
			if math.Abs(s.Mean-tt.wantMean) > 1e-9 {
				t.Errorf("Mean = %v, want %v", s.Mean, tt.wantMean)
			}
			if math.Abs(s.Uncertainty-tt.wantUO) > 1e-9 {
				t.Errorf("Uncertainty = %v, want %v", s.Uncertainty, tt.wantUO)
			}
			if s.HasData != tt.wantHasData {
				t.Errorf("HasData = %v, want %v", s.HasData, tt.wantHasData)
			}
			if s.InsufficientTrials != tt.insufficient {
				t.Errorf("InsufficientTrials = %v, want %v", s.InsufficientTrials, tt.insufficient)
			}

			reversed := make([]float64, len(tt.values))
			for i, v := range tt.values {
				reversed[len(tt.values)-1-i] = v
			}
			r := ComputeObserverStats(reversed)
			if math.Abs(r.Mean-s.Mean) > 1e-12 || math.Abs(r.Uncertainty-s.Uncertainty) > 1e-12 {
				t.Errorf("reordered trials changed stats: %+v vs %+v", r, s)
			}
		})
	}
}

func TestObserverStats_Err(t *testing.T) {
	if err := ComputeObserverStats([]float64{1}).Err(); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Err() = %v, want ErrInsufficientData", err)
	}
	if err := ComputeObserverStats([]float64{1, 2}).Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}
