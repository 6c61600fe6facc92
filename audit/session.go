package audit

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Settings are the model selections of a session
type Settings struct {
	Resolution     ResolutionModel     `json:"resolution"`
	Profile        ConservatismProfile `json:"profile"`
	CoverageFactor CoverageFactor      `json:"coverageFactor"`
}

// Session owns one analyst's trials, error sources and settings. Every
// mutator validates first, then recomputes the managed sensor source through
// RefreshSensorSource before committing, so a failed call leaves the session
// unchanged.
type Session struct {
	mu          sync.RWMutex
	id          string
	trials      []float64
	sources     []ErrorSource
	model       ResolutionModel
	profile     ConservatismProfile
	k           CoverageFactor
	lastUpdated time.Time
}

// NewSession creates a session with the default settings and no trials
func NewSession() *Session {
	s := &Session{
		id:      uuid.NewString(),
		model:   DefaultResolutionModel,
		profile: DefaultProfile,
		k:       DefaultCoverageFactor,
	}
	// Defaults are known-valid, so the refresh cannot fail.
	_ = s.apply(nil, nil, s.model, s.profile)
	return s
}

// RestoreSession rebuilds a session from persisted or configured state.
// The managed sensor value is kept as stored when the model is CUSTOM.
func RestoreSession(state SessionState) (*Session, error) {
	model, err := ParseResolutionModel(string(state.Resolution))
	if err != nil {
		return nil, err
	}
	profile, err := ParseProfile(string(state.Profile))
	if err != nil {
		return nil, err
	}
	k, err := NewCoverageFactor(int(state.CoverageFactor))
	if err != nil {
		return nil, err
	}
	for i, v := range state.Trials {
		if err := checkFinite(v); err != nil {
			return nil, fmt.Errorf("trial %d: %w", i+1, err)
		}
	}

	var sources []ErrorSource
	for _, src := range state.ErrorSources {
		if src.IsManaged() {
			if err := checkUncertainty(src.Value); err != nil {
				return nil, fmt.Errorf("%s: %w", SensorSourceName, err)
			}
			sources = append(sources, src)
			continue
		}
		if err := validateUserSource(sources, src.Name, src.Value); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	id := state.ID
	if id == "" {
		id = uuid.NewString()
	}

	s := &Session{id: id, k: k}
	if err := s.apply(append([]float64(nil), state.Trials...), sources, model, profile); err != nil {
		return nil, err
	}
	if state.LastUpdated > 0 {
		s.lastUpdated = time.Unix(state.LastUpdated, 0)
	}
	return s, nil
}

// apply recomputes the managed source for the candidate state and commits
// it. Callers must hold the write lock.
func (s *Session) apply(trials []float64, sources []ErrorSource, model ResolutionModel, profile ConservatismProfile) error {
	refreshed, err := RefreshSensorSource(sources, trials, model, profile)
	if err != nil {
		return err
	}
	s.trials = trials
	s.sources = refreshed
	s.model = model
	s.profile = profile
	s.lastUpdated = time.Now()
	return nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// AddTrial appends a reading and returns its index
func (s *Session) AddTrial(value float64) (int, error) {
	if err := checkFinite(value); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	trials := append(append(make([]float64, 0, len(s.trials)+1), s.trials...), value)
	if err := s.apply(trials, s.sources, s.model, s.profile); err != nil {
		return 0, err
	}
	return len(trials) - 1, nil
}

// AddTrials appends several readings at once; nothing is added if any is invalid
func (s *Session) AddTrials(values ...float64) error {
	for _, v := range values {
		if err := checkFinite(v); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	trials := append(append(make([]float64, 0, len(s.trials)+len(values)), s.trials...), values...)
	return s.apply(trials, s.sources, s.model, s.profile)
}

// SetTrial replaces the reading at index
func (s *Session) SetTrial(index int, value float64) error {
	if err := checkFinite(value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	trials := append([]float64(nil), s.trials...)
	trials[index] = value
	return s.apply(trials, s.sources, s.model, s.profile)
}

// RemoveTrial deletes the reading at index
func (s *Session) RemoveTrial(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	trials := make([]float64, 0, len(s.trials)-1)
	trials = append(trials, s.trials[:index]...)
	trials = append(trials, s.trials[index+1:]...)
	return s.apply(trials, s.sources, s.model, s.profile)
}

// ClearTrials removes every reading
func (s *Session) ClearTrials() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.apply(nil, s.sources, s.model, s.profile)
}

func (s *Session) checkIndex(index int) error {
	if index < 0 || index >= len(s.trials) {
		return fmt.Errorf("%w: %d (have %d trials)", ErrIndexOutOfRange, index, len(s.trials))
	}
	return nil
}

// Trials returns a copy of the current readings
func (s *Session) Trials() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64(nil), s.trials...)
}

// SetResolutionModel selects the sensor model and recomputes the sensor source
func (s *Session) SetResolutionModel(model ResolutionModel) error {
	if _, ok := LookupModel(model); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownResolutionModel, model)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(s.trials, s.sources, model, s.profile)
}

// SetConservatismProfile selects the profile and recomputes the sensor source
func (s *Session) SetConservatismProfile(profile ConservatismProfile) error {
	p, err := ParseProfile(string(profile))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(s.trials, s.sources, s.model, p)
}

// SetCoverageFactor sets k, rejecting values outside {1, 2, 3}
func (s *Session) SetCoverageFactor(k int) error {
	cf, err := NewCoverageFactor(k)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.k = cf
	s.lastUpdated = time.Now()
	return nil
}

// Settings returns the current model selections
func (s *Session) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Settings{Resolution: s.model, Profile: s.profile, CoverageFactor: s.k}
}

// AddErrorSource adds a user-defined contributor
func (s *Session) AddErrorSource(name string, value float64) error {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateUserSource(s.sources, name, value); err != nil {
		return err
	}
	sources := append(append([]ErrorSource(nil), s.sources...), UserSource(name, value))
	return s.apply(s.trials, sources, s.model, s.profile)
}

// SetErrorSource updates the value of a user-defined contributor
func (s *Session) SetErrorSource(name string, value float64) error {
	name = strings.TrimSpace(name)
	if err := checkUncertainty(value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := findUserSource(s.sources, name)
	if idx < 0 {
		return s.sourceLookupError(name)
	}
	sources := append([]ErrorSource(nil), s.sources...)
	sources[idx].Value = value
	return s.apply(s.trials, sources, s.model, s.profile)
}

// RemoveErrorSource deletes a user-defined contributor
func (s *Session) RemoveErrorSource(name string) error {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := findUserSource(s.sources, name)
	if idx < 0 {
		return s.sourceLookupError(name)
	}
	sources := make([]ErrorSource, 0, len(s.sources)-1)
	sources = append(sources, s.sources[:idx]...)
	sources = append(sources, s.sources[idx+1:]...)
	return s.apply(s.trials, sources, s.model, s.profile)
}

func (s *Session) sourceLookupError(name string) error {
	if name == SensorSourceName {
		return fmt.Errorf("%w: use the sensor setting to edit %q", ErrManagedSource, name)
	}
	return fmt.Errorf("%w: %q", ErrSourceNotFound, name)
}

// SetSensorUncertainty sets the managed sensor value by hand. It is only
// allowed while the CUSTOM model is selected.
func (s *Session) SetSensorUncertainty(value float64) error {
	if err := checkUncertainty(value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.model.IsManual() {
		return fmt.Errorf("%w: %s", ErrManagedSource, s.model.Label())
	}
	sources := append([]ErrorSource(nil), s.sources...)
	for i := range sources {
		if sources[i].IsManaged() {
			sources[i].Value = value
		}
	}
	return s.apply(s.trials, sources, s.model, s.profile)
}

// ErrorSources returns a copy of all contributors, managed entry first
func (s *Session) ErrorSources() []ErrorSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ErrorSource(nil), s.sources...)
}

// SensorUncertainty returns the current managed sensor value
func (s *Session) SensorUncertainty() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, src := range s.sources {
		if src.IsManaged() {
			return src.Value
		}
	}
	return 0
}

// Budget computes the uncertainty budget for the current state
func (s *Session) Budget() Budget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// k is validated on every path that sets it.
	b, _ := ComputeBudget(s.trials, s.sources, s.k)
	return b
}

// Report renders the methodology report, or ErrNoData without trials
func (s *Session) Report() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, _ := ComputeBudget(s.trials, s.sources, s.k)
	return GenerateReport(b, s.model, s.profile)
}

// Summary renders the live audit panel for the current state
func (s *Session) Summary() string {
	return FormatSummary(s.Budget())
}

// Snapshot is a consistent view of a session taken under a single lock
type Snapshot struct {
	Settings Settings
	Budget   Budget
	Report   string // empty when there are no trials
	State    SessionState
}

// Snapshot returns the settings, budget, report and persisted state as of
// one instant, so that published and saved views agree with each other.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, _ := ComputeBudget(s.trials, s.sources, s.k)
	report, _ := GenerateReport(b, s.model, s.profile)
	return Snapshot{
		Settings: Settings{Resolution: s.model, Profile: s.profile, CoverageFactor: s.k},
		Budget:   b,
		Report:   report,
		State:    s.stateLocked(),
	}
}

// State snapshots the session for persistence
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() SessionState {
	return SessionState{
		ID:             s.id,
		Resolution:     s.model,
		Profile:        s.profile,
		CoverageFactor: s.k,
		Trials:         append([]float64(nil), s.trials...),
		ErrorSources:   append([]ErrorSource(nil), s.sources...),
		LastUpdated:    s.lastUpdated.Unix(),
	}
}

func findUserSource(sources []ErrorSource, name string) int {
	for i, src := range sources {
		if !src.IsManaged() && src.Name == name {
			return i
		}
	}
	return -1
}

func validateUserSource(existing []ErrorSource, name string, value float64) error {
	if name == "" {
		return fmt.Errorf("error source name is required")
	}
	if strings.EqualFold(name, SensorSourceName) {
		return fmt.Errorf("%w: %q", ErrReservedSourceName, name)
	}
	if findUserSource(existing, name) >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateSource, name)
	}
	return checkUncertainty(value)
}

func checkUncertainty(v float64) error {
	if err := checkFinite(v); err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("%w: %g", ErrNegativeUncertainty, v)
	}
	return nil
}

func checkFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidValue, v)
	}
	return nil
}
