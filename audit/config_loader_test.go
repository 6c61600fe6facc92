package audit

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fsaudit.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
session:
  resolution: h_on_road
  profile: balanced
  coverageFactor: 2
  trials: [10, 10.2]
  errorSources:
    - name: Camera Height
      value: 0.05
mqtt:
  broker: tcp://localhost:1883
  publishPrefix: audit
  qos: 1
  retain: false
http:
  port: 9090
log:
  format: json
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Session.Resolution != ResolutionHarringtonOnRoad {
		t.Errorf("Resolution = %q, want H_ON_ROAD", cfg.Session.Resolution)
	}
	if cfg.Session.Profile != ProfileBalanced {
		t.Errorf("Profile = %q, want BALANCED", cfg.Session.Profile)
	}
	if cfg.Session.CoverageFactor != CoverageK2 {
		t.Errorf("CoverageFactor = %d, want 2", cfg.Session.CoverageFactor)
	}
	if len(cfg.Session.ErrorSources) != 1 || cfg.Session.ErrorSources[0].Name != "Camera Height" {
		t.Errorf("ErrorSources = %+v", cfg.Session.ErrorSources)
	}
	if cfg.MQTT.ReadingsTopic != "audit/readings" {
		t.Errorf("ReadingsTopic = %q, want audit/readings", cfg.MQTT.ReadingsTopic)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.MQTT.QoS != 1 || cfg.MQTT.Retain == nil || *cfg.MQTT.Retain {
		t.Errorf("MQTT publish options = qos %d retain %v", cfg.MQTT.QoS, cfg.MQTT.Retain)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.StatePath != DefaultSessionStatePath {
		t.Errorf("StatePath = %q", cfg.StatePath)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "mqtt:\n  broker: \"\"\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Session.Resolution != DefaultResolutionModel || cfg.Session.Profile != DefaultProfile {
		t.Errorf("Session defaults = %+v", cfg.Session)
	}
	if cfg.Session.CoverageFactor != DefaultCoverageFactor {
		t.Errorf("CoverageFactor = %d, want 1", cfg.Session.CoverageFactor)
	}
	if cfg.MQTT.PublishPrefix != "fsaudit" || cfg.MQTT.ReadingsTopic != "fsaudit/readings" {
		t.Errorf("MQTT defaults = %+v", cfg.MQTT)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("HTTP.Port = %d, want 8080", cfg.HTTP.Port)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"coverage factor": "session:\n  coverageFactor: 4\n",
		"resolution":      "session:\n  resolution: 8K\n",
		"profile":         "session:\n  profile: reckless\n",
		"negative source": "session:\n  errorSources:\n    - name: Lens\n      value: -1\n",
		"unnamed source":  "session:\n  errorSources:\n    - value: 1\n",
		"reserved source": "session:\n  errorSources:\n    - name: Sensor Uncertainty\n      value: 1\n",
		"malformed yaml":  "session: [\n",
		"mqtt qos":        "mqtt:\n  qos: 3\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.Resolution = ResolutionSatellite30To60cm
	cfg.Session.CoverageFactor = CoverageK3
	cfg.Session.Trials = []float64{1.5, 1.6}
	cfg.Session.ErrorSources = []ErrorSource{UserSource("Lens", 0.02)}

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Session.Resolution != ResolutionSatellite30To60cm {
		t.Errorf("Resolution = %q", loaded.Session.Resolution)
	}
	if loaded.Session.CoverageFactor != CoverageK3 {
		t.Errorf("CoverageFactor = %d", loaded.Session.CoverageFactor)
	}
	if len(loaded.Session.Trials) != 2 || len(loaded.Session.ErrorSources) != 1 {
		t.Errorf("Session = %+v", loaded.Session)
	}
}

func TestConfig_NewSession(t *testing.T) {
	sensor := 0.35
	cfg := DefaultConfig()
	cfg.Session.Resolution = ResolutionCustom
	cfg.Session.SensorUncertainty = &sensor
	cfg.Session.Trials = []float64{3, 5}
	cfg.Session.ErrorSources = []ErrorSource{{Name: "Lens", Value: 0.1}}

	s, err := cfg.NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.SensorUncertainty() != 0.35 {
		t.Errorf("SensorUncertainty = %v, want 0.35", s.SensorUncertainty())
	}
	if got := len(s.ErrorSources()); got != 2 {
		t.Errorf("len(ErrorSources) = %d, want 2", got)
	}
	if got := s.Trials(); len(got) != 2 {
		t.Errorf("Trials = %v", got)
	}

	// Outside CUSTOM the configured sensor value is replaced by the model.
	cfg.Session.Resolution = ResolutionHarringtonOnRoad
	s, err = cfg.NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if got := s.SensorUncertainty(); got < 0.0579 || got > 0.0581 {
		t.Errorf("SensorUncertainty = %v, want 4*0.0145", got)
	}
}
