package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultSessionStatePath is the default location of the persisted session
const DefaultSessionStatePath = ".fsaudit-session.json"

// SessionState is the persisted form of a Session
type SessionState struct {
	ID             string              `json:"id"`
	Resolution     ResolutionModel     `json:"resolution"`
	Profile        ConservatismProfile `json:"profile"`
	CoverageFactor CoverageFactor      `json:"coverageFactor"`
	Trials         []float64           `json:"trials"`
	ErrorSources   []ErrorSource       `json:"errorSources"`
	LastUpdated    int64               `json:"lastUpdated"`
}

// LoadSession reads a persisted session state. A missing file is not an
// error: it returns nil, nil.
func LoadSession(path string) (*SessionState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No session saved yet
		}
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing session file: %w", err)
	}

	return &state, nil
}

// SaveSession writes the session state as indented JSON. The file is
// replaced atomically, so concurrent saves leave one complete state behind.
func SaveSession(path string, state *SessionState) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	if state.LastUpdated == 0 {
		state.LastUpdated = time.Now().Unix()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}

	// Write beside the target and rename so readers never see a partial file.
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}

	return nil
}
