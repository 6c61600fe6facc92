package audit

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// EmptyTrialsBaseValue is the mean assumed by empirical-rate models when no
// trials exist yet, so the budget stays defined before data is entered.
const EmptyTrialsBaseValue = 1.0

// ResolutionModel identifies the sensor/imagery class the readings were taken on
type ResolutionModel string

const (
	ResolutionAerial15To30cm    ResolutionModel = "15_30CM"
	ResolutionSatellite30To60cm ResolutionModel = "30_60CM"
	ResolutionSatellite1To2_5m  ResolutionModel = "1_2_5M"
	ResolutionLandsat15To30m    ResolutionModel = "15_30M"
	ResolutionHarringtonOnRoad  ResolutionModel = "H_ON_ROAD"
	ResolutionHarringtonOffRoad ResolutionModel = "H_OFF_ROAD"
	ResolutionCustom            ResolutionModel = "CUSTOM"

	DefaultResolutionModel = ResolutionAerial15To30cm
	DefaultProfile         = ProfileDefensive
)

// ModelKind distinguishes how a resolution model yields sensor uncertainty
type ModelKind int

const (
	ModelPhysical ModelKind = iota
	ModelEmpirical
	ModelManual
)

func (k ModelKind) String() string {
	switch k {
	case ModelPhysical:
		return "physical"
	case ModelEmpirical:
		return "empirical"
	default:
		return "manual"
	}
}

// MarshalText encodes the kind by name
func (k ModelKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ModelSpec describes one entry of the resolution catalog
type ModelSpec struct {
	ID          ResolutionModel `json:"id"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Kind        ModelKind       `json:"kind"`
	MinGSD      float64         `json:"minGsd,omitempty"` // meters
	MaxGSD      float64         `json:"maxGsd,omitempty"` // meters
	Rate        float64         `json:"rate,omitempty"`   // mean absolute error fraction
}

// Catalog lists every resolution model in display order
var Catalog = []ModelSpec{
	{ID: ResolutionAerial15To30cm, Label: "Aerial Photography (15-30 cm)", Description: "High-resolution sub-meter imagery", Kind: ModelPhysical, MinGSD: 0.15, MaxGSD: 0.30},
	{ID: ResolutionSatellite30To60cm, Label: "Commercial Satellite (30-60 cm)", Description: "Standard high-res satellite data", Kind: ModelPhysical, MinGSD: 0.30, MaxGSD: 0.60},
	{ID: ResolutionSatellite1To2_5m, Label: "Older Satellite (1.00-2.50 m)", Description: "Legacy or mid-resolution satellite data", Kind: ModelPhysical, MinGSD: 1.00, MaxGSD: 2.50},
	{ID: ResolutionLandsat15To30m, Label: "Landsat/Sentinel (15-30 m)", Description: "Public access satellite (Wilderness/Oceans)", Kind: ModelPhysical, MinGSD: 15.00, MaxGSD: 30.00},
	{ID: ResolutionHarringtonOnRoad, Label: "Harrington: On-Road", Description: "Empirical 1.45% MAE for road markings", Kind: ModelEmpirical, Rate: 0.0145},
	{ID: ResolutionHarringtonOffRoad, Label: "Harrington: Off-Road", Description: "Empirical 1.61% MAE for buildings", Kind: ModelEmpirical, Rate: 0.0161},
	{ID: ResolutionCustom, Label: "Custom/Manual", Description: "User-defined sensor uncertainty", Kind: ModelManual},
}

// LookupModel returns the catalog entry for m
func LookupModel(m ResolutionModel) (ModelSpec, bool) {
	for _, entry := range Catalog {
		if entry.ID == m {
			return entry, true
		}
	}
	return ModelSpec{}, false
}

// ParseResolutionModel converts an identifier such as "30_60cm" to a ResolutionModel
func ParseResolutionModel(s string) (ResolutionModel, error) {
	m := ResolutionModel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := LookupModel(m); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownResolutionModel, s)
	}
	return m, nil
}

// UnmarshalText validates the model when decoding YAML or JSON
func (m *ResolutionModel) UnmarshalText(text []byte) error {
	v, err := ParseResolutionModel(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Label returns the human-readable model name, or the identifier if unknown
func (m ResolutionModel) Label() string {
	if entry, ok := LookupModel(m); ok {
		return entry.Label
	}
	return string(m)
}

// IsManual reports whether the model leaves the sensor source to the user
func (m ResolutionModel) IsManual() bool {
	entry, ok := LookupModel(m)
	return ok && entry.Kind == ModelManual
}

// ChosenGSD picks the ground sample distance within [min, max] for a profile.
// Unrecognized profiles fall back to the defensive maximum.
func ChosenGSD(minGSD, maxGSD float64, profile ConservatismProfile) float64 {
	switch profile {
	case ProfileOptimistic:
		return minGSD
	case ProfileBalanced:
		return (minGSD + maxGSD) / 2
	default:
		return maxGSD
	}
}

// PointError is the two-axis positional error for a pixel footprint: half the
// GSD on each of x and y, combined as a planar distance.
func PointError(gsd float64) float64 {
	axis := gsd / 2
	return planar.Distance(orb.Point{0, 0}, orb.Point{axis, axis})
}

// ResolveSensorUncertainty returns the 1-sigma sensor uncertainty in meters for
// the given trials, model and profile. ok is false for the manual model, whose
// sensor value is never computed.
func ResolveSensorUncertainty(trials []float64, model ResolutionModel, profile ConservatismProfile) (float64, bool, error) {
	entry, found := LookupModel(model)
	if !found {
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownResolutionModel, model)
	}

	switch entry.Kind {
	case ModelEmpirical:
		base := EmptyTrialsBaseValue
		if len(trials) > 0 {
			base = math.Abs(mean(trials))
		}
		return base * entry.Rate, true, nil
	case ModelPhysical:
		return PointError(ChosenGSD(entry.MinGSD, entry.MaxGSD, profile)), true, nil
	default:
		return 0, false, nil
	}
}

// RefreshSensorSource returns a copy of sources with the managed sensor entry
// brought up to date for the current trials, model and profile. The managed
// entry is created at index 0 when absent. User-defined entries are copied
// unchanged, and under the manual model the managed value is left as is.
func RefreshSensorSource(sources []ErrorSource, trials []float64, model ResolutionModel, profile ConservatismProfile) ([]ErrorSource, error) {
	value, ok, err := ResolveSensorUncertainty(trials, model, profile)
	if err != nil {
		return nil, err
	}

	out := make([]ErrorSource, 0, len(sources)+1)
	idx := -1
	for i, s := range sources {
		if s.IsManaged() {
			if idx >= 0 {
				continue // keep a single managed entry
			}
			idx = i
		}
		out = append(out, s)
	}

	if idx < 0 {
		out = append([]ErrorSource{ManagedSource(0)}, out...)
		idx = 0
	}
	if ok {
		out[idx].Value = value
	}
	return out, nil
}
