package audit

import "math"

// ObserverStats summarizes the repeatability of the analyst's trials
type ObserverStats struct {
	Count int
	Mean  float64 // 0 when HasData is false
	// HasData is false for an empty trial set, where Mean carries no meaning
	HasData bool
	// Uncertainty is the Bessel-corrected sample standard deviation (uo)
	Uncertainty float64
	// InsufficientTrials is set when fewer than two trials exist. Uncertainty
	// is then 0 and must not be read as perfect repeatability.
	InsufficientTrials bool
}

// ComputeObserverStats derives the sample mean and observer uncertainty
func ComputeObserverStats(values []float64) ObserverStats {
	stats := ObserverStats{Count: len(values)}
	if stats.Count == 0 {
		stats.InsufficientTrials = true
		return stats
	}

	stats.HasData = true
	stats.Mean = mean(values)

	if stats.Count < 2 {
		stats.InsufficientTrials = true
		return stats
	}

	var sumSq float64
	for _, v := range values {
		d := v - stats.Mean
		sumSq += d * d
	}
	stats.Uncertainty = math.Sqrt(sumSq / float64(stats.Count-1))
	return stats
}

// Err returns ErrInsufficientData when uo could not be estimated
func (s ObserverStats) Err() error {
	if s.InsufficientTrials {
		return ErrInsufficientData
	}
	return nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
