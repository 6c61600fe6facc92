package audit

import (
	"fmt"
	"strings"
)

const (
	reportHeader = "METHODOLOGY: SPATIAL UNCERTAINTY ANALYSIS"
	reportFooter = "Calculated using the Forensic Spatial Auditor (Blendervisualinvestigation.com)"
)

var reportRule = strings.Repeat("-", 40)

// GenerateReport renders the methodology text quoted verbatim in forensic
// documentation. Labels and %.4f formatting must stay byte-stable.
func GenerateReport(b Budget, model ResolutionModel, profile ConservatismProfile) (string, error) {
	if b.TrialCount == 0 {
		return "", ErrNoData
	}

	uoLine := fmt.Sprintf("   - User Induced Uncertainty (uo): ±%.4fm", b.ObserverUncertainty)
	if b.InsufficientTrials {
		uoLine = "   - User Induced Uncertainty (uo): Insufficient trials (n < 2)"
	}

	lines := []string{
		reportHeader,
		reportRule,
		fmt.Sprintf("I. OBSERVER DATA: %d trial(s) were conducted.", b.TrialCount),
		fmt.Sprintf("   - Sample Mean (μ): %.4fm", b.Mean),
		uoLine,
		"",
		fmt.Sprintf("II. SENSOR BUDGET: Derived from system preset '%s' (%s profile).", model.Label(), profile.Label()),
		fmt.Sprintf("   - Quantified Sensor Uncertainty (us): ±%.4fm", b.SensorUncertainty),
		"",
		"III. ERROR PROPAGATION (Root Sum Square):",
		fmt.Sprintf("   - Combined Standard Uncertainty (uc): ±%.4fm", b.CombinedUncertainty),
		fmt.Sprintf("   - Coverage Factor (k / σ): %d (%s confidence)", int(b.CoverageFactor), b.Confidence),
		fmt.Sprintf("   - Final Expanded Uncertainty (U): ±%.4fm", b.ExpandedUncertainty),
		"",
		"FINAL RESULT: " + b.Result(),
		reportRule,
		reportFooter,
	}
	return strings.Join(lines, "\n"), nil
}

// FormatSummary renders the short live audit panel shown while trials are
// being entered. Unlike GenerateReport it never fails.
func FormatSummary(b Budget) string {
	var sb strings.Builder

	if b.HasData {
		fmt.Fprintf(&sb, "Sample Mean (μ): %.4fm\n", b.Mean)
		if b.InsufficientTrials {
			sb.WriteString("Need 2+ trials for uo.\n")
		} else {
			fmt.Fprintf(&sb, "User Induced Uncertainty (uo): ±%.4fm\n", b.ObserverUncertainty)
		}
	} else {
		sb.WriteString("No trials recorded.\n")
	}

	k := int(b.CoverageFactor)
	fmt.Fprintf(&sb, "Audit Result (σ=%d / k=%d):\n", k, k)
	sb.WriteString(b.Result() + "\n")
	fmt.Fprintf(&sb, "Confidence Interval: %s\n", b.Confidence)
	return sb.String()
}
