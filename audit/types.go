package audit

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SensorSourceName is the display label of the engine-managed error source.
const SensorSourceName = "Sensor Uncertainty"

// ConservatismProfile selects which point of a physical GSD range is used
type ConservatismProfile string

const (
	ProfileOptimistic ConservatismProfile = "OPTIMISTIC" // minimum GSD of tier
	ProfileBalanced   ConservatismProfile = "BALANCED"   // midpoint GSD of tier
	ProfileDefensive  ConservatismProfile = "DEFENSIVE"  // maximum GSD of tier
)

// Profiles lists the conservatism profiles in display order
var Profiles = []ConservatismProfile{ProfileOptimistic, ProfileBalanced, ProfileDefensive}

// ParseProfile converts a profile identifier (case-insensitive) to a ConservatismProfile
func ParseProfile(s string) (ConservatismProfile, error) {
	p := ConservatismProfile(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Profiles {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProfile, s)
}

// Label returns the human-readable profile name used in reports
func (p ConservatismProfile) Label() string {
	switch p {
	case ProfileOptimistic:
		return "Optimistic"
	case ProfileBalanced:
		return "Balanced"
	case ProfileDefensive:
		return "Defensive"
	}
	return string(p)
}

// UnmarshalText validates the profile when decoding YAML or JSON
func (p *ConservatismProfile) UnmarshalText(text []byte) error {
	v, err := ParseProfile(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// CoverageFactor is the expansion multiplier k. Only 1, 2 and 3 are valid;
// construct values with NewCoverageFactor.
type CoverageFactor int

const (
	CoverageK1 CoverageFactor = 1
	CoverageK2 CoverageFactor = 2
	CoverageK3 CoverageFactor = 3

	DefaultCoverageFactor = CoverageK1
)

var confidenceLabels = map[CoverageFactor]string{
	CoverageK1: "68.2%",
	CoverageK2: "95.4%",
	CoverageK3: "99.7%",
}

// NewCoverageFactor returns k as a CoverageFactor, or ErrInvalidCoverageFactor
// when k is outside {1, 2, 3}.
func NewCoverageFactor(k int) (CoverageFactor, error) {
	cf := CoverageFactor(k)
	if !cf.Valid() {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidCoverageFactor, k)
	}
	return cf, nil
}

// Valid reports whether k is one of the supported coverage factors
func (k CoverageFactor) Valid() bool {
	_, ok := confidenceLabels[k]
	return ok
}

// Confidence returns the one-dimensional normal confidence level for k.
// The second result is false for an invalid factor.
func (k CoverageFactor) Confidence() (string, bool) {
	label, ok := confidenceLabels[k]
	return label, ok
}

// UnmarshalYAML rejects out-of-range factors at config load time
func (k *CoverageFactor) UnmarshalYAML(value *yaml.Node) error {
	var raw int
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("coverage factor: %w", err)
	}
	cf, err := NewCoverageFactor(raw)
	if err != nil {
		return err
	}
	*k = cf
	return nil
}

// UnmarshalJSON rejects out-of-range factors in API payloads and state files
func (k *CoverageFactor) UnmarshalJSON(data []byte) error {
	var raw int
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("coverage factor: %w", err)
	}
	cf, err := NewCoverageFactor(raw)
	if err != nil {
		return err
	}
	*k = cf
	return nil
}

// SourceKind tags who owns an error source
type SourceKind uint8

const (
	SourceUserDefined SourceKind = iota
	SourceManaged
)

func (k SourceKind) String() string {
	if k == SourceManaged {
		return "managed"
	}
	return "user"
}

// MarshalText encodes the kind as "managed" or "user"
func (k SourceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes "managed" or "user"
func (k *SourceKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "managed":
		*k = SourceManaged
	case "user", "":
		*k = SourceUserDefined
	default:
		return fmt.Errorf("unknown error source kind %q", string(text))
	}
	return nil
}

// ErrorSource is one independent 1-sigma uncertainty contributor in meters.
// The single managed source is owned by the engine; user-defined sources are
// taken as given.
type ErrorSource struct {
	Kind  SourceKind `json:"kind" yaml:"-"`
	Name  string     `json:"name,omitempty" yaml:"name"`
	Value float64    `json:"value" yaml:"value"`
}

// ManagedSource returns the engine-managed sensor source with the given value
func ManagedSource(value float64) ErrorSource {
	return ErrorSource{Kind: SourceManaged, Value: value}
}

// UserSource returns a user-defined error source
func UserSource(name string, value float64) ErrorSource {
	return ErrorSource{Kind: SourceUserDefined, Name: name, Value: value}
}

// IsManaged reports whether the source is the engine-managed sensor entry
func (s ErrorSource) IsManaged() bool {
	return s.Kind == SourceManaged
}

// Label returns the display name of the source
func (s ErrorSource) Label() string {
	if s.IsManaged() {
		return SensorSourceName
	}
	return s.Name
}
