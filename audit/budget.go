package audit

import (
	"fmt"
	"math"
)

// Budget is the full uncertainty budget for one set of inputs. All
// uncertainties are 1-sigma values in meters except ExpandedUncertainty,
// which is scaled by CoverageFactor.
type Budget struct {
	TrialCount          int
	Mean                float64
	HasData             bool
	ObserverUncertainty float64
	InsufficientTrials  bool
	SensorUncertainty   float64
	CombinedUncertainty float64
	CoverageFactor      CoverageFactor
	ExpandedUncertainty float64
	Confidence          string
}

// RSS combines independent contributors by root sum of squares
func RSS(values ...float64) float64 {
	var sumSq float64
	for _, v := range values {
		sumSq += v * v
	}
	return math.Sqrt(sumSq)
}

// ComputeBudget combines observer statistics with every error source and
// expands the result by k. Sources are treated as independent.
func ComputeBudget(trials []float64, sources []ErrorSource, k CoverageFactor) (Budget, error) {
	confidence, ok := k.Confidence()
	if !ok {
		return Budget{}, fmt.Errorf("%w: got %d", ErrInvalidCoverageFactor, int(k))
	}

	obs := ComputeObserverStats(trials)

	values := make([]float64, len(sources))
	for i, s := range sources {
		values[i] = s.Value
	}
	us := RSS(values...)
	uc := RSS(us, obs.Uncertainty)

	return Budget{
		TrialCount:          obs.Count,
		Mean:                obs.Mean,
		HasData:             obs.HasData,
		ObserverUncertainty: obs.Uncertainty,
		InsufficientTrials:  obs.InsufficientTrials,
		SensorUncertainty:   us,
		CombinedUncertainty: uc,
		CoverageFactor:      k,
		ExpandedUncertainty: uc * float64(k),
		Confidence:          confidence,
	}, nil
}

// Result renders the final "mean ± U" pair
func (b Budget) Result() string {
	return fmt.Sprintf("%.4fm ± %.4fm", b.Mean, b.ExpandedUncertainty)
}
