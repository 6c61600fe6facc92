package audit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the full configuration file
type Config struct {
	Session   SessionConfig `yaml:"session" json:"session"`
	MQTT      MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	HTTP      HTTPConfig    `yaml:"http" json:"http"`
	Log       LogConfig     `yaml:"log" json:"log"`
	StatePath string        `yaml:"statePath,omitempty" json:"statePath,omitempty"` // Persisted session file (default .fsaudit-session.json)
}

// SessionConfig seeds a new session
type SessionConfig struct {
	Resolution        ResolutionModel     `yaml:"resolution,omitempty" json:"resolution,omitempty"`
	Profile           ConservatismProfile `yaml:"profile,omitempty" json:"profile,omitempty"`
	CoverageFactor    CoverageFactor      `yaml:"coverageFactor,omitempty" json:"coverageFactor,omitempty"`
	Trials            []float64           `yaml:"trials,omitempty" json:"trials,omitempty"`
	ErrorSources      []ErrorSource       `yaml:"errorSources,omitempty" json:"errorSources,omitempty"`
	SensorUncertainty *float64            `yaml:"sensorUncertainty,omitempty" json:"sensorUncertainty,omitempty"` // Only used with the CUSTOM model
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	ReadingsTopic string `yaml:"readingsTopic,omitempty" json:"readingsTopic,omitempty"` // Incoming trial readings
	QoS           byte   `yaml:"qos,omitempty" json:"qos,omitempty"`                     // Publish QoS (0, 1 or 2)
	Retain        *bool  `yaml:"retain,omitempty" json:"retain,omitempty"`               // Retain published budgets (default true)
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port int `yaml:"port,omitempty" json:"port,omitempty"`
}

// LogConfig controls the logger
type LogConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" json:"format,omitempty"` // console or json
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Session.Resolution == "" {
		c.Session.Resolution = DefaultResolutionModel
	}
	if c.Session.Profile == "" {
		c.Session.Profile = DefaultProfile
	}
	if c.Session.CoverageFactor == 0 {
		c.Session.CoverageFactor = DefaultCoverageFactor
	}
	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = "fsaudit"
	}
	if c.MQTT.ReadingsTopic == "" {
		c.MQTT.ReadingsTopic = c.MQTT.PublishPrefix + "/readings"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.StatePath == "" {
		c.StatePath = DefaultSessionStatePath
	}
}

// LoadConfig loads the configuration from a YAML file. Enumerated settings
// are validated while decoding.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	config.applyDefaults()

	if config.MQTT.QoS > 2 {
		return nil, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", config.MQTT.QoS)
	}
	for i, src := range config.Session.ErrorSources {
		if src.Name == "" {
			return nil, fmt.Errorf("session.errorSources[%d].name is required", i)
		}
	}
	if _, err := config.NewSession(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// NewSession builds a session seeded from the session section
func (c *Config) NewSession() (*Session, error) {
	sc := c.Session
	state := SessionState{
		Resolution:     sc.Resolution,
		Profile:        sc.Profile,
		CoverageFactor: sc.CoverageFactor,
		Trials:         sc.Trials,
	}
	if sc.SensorUncertainty != nil {
		state.ErrorSources = append(state.ErrorSources, ManagedSource(*sc.SensorUncertainty))
	}
	for _, src := range sc.ErrorSources {
		state.ErrorSources = append(state.ErrorSources, UserSource(src.Name, src.Value))
	}
	return RestoreSession(state)
}
