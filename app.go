package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/kwv/fsaudit/audit"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *audit.Config
	Session    *audit.Session
	Metrics    *audit.Metrics
	MQTTClient *audit.MQTTClient
	Publisher  *audit.Publisher
	Logger     *zap.Logger
	Out        io.Writer

	changeMu sync.Mutex

	// CLI Flags (effectively dependencies)
	ConfigFile     string
	StatePath      string
	Trials         string
	Resolution     string
	Profile        string
	CoverageFactor int
	CoverageSet    bool
	Sources        string
	Sensor         string
	OutputFile     string
	Format         string
	HttpPort       int
	LogLevel       string
	LogFormat      string
	MqttMode       bool
	HttpMode       bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Out:    os.Stdout,
		Logger: zap.NewNop(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.StatePath = opts.StatePath
	a.Trials = opts.Trials
	a.Resolution = opts.Resolution
	a.Profile = opts.Profile
	a.CoverageFactor = opts.CoverageFactor
	a.CoverageSet = opts.CoverageSet
	a.Sources = opts.Sources
	a.Sensor = opts.Sensor
	a.OutputFile = opts.OutputFile
	a.Format = opts.Format
	a.HttpPort = opts.HttpPort
	a.LogLevel = opts.LogLevel
	a.LogFormat = opts.LogFormat
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
	if opts.Out != nil {
		a.Out = opts.Out
	}
}

// setup loads configuration, builds the logger and restores the session,
// then applies command line overrides on top.
func (a *App) setup() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.Config = cfg

	if a.LogLevel != "" {
		cfg.Log.Level = a.LogLevel
	}
	if a.LogFormat != "" {
		cfg.Log.Format = a.LogFormat
	}
	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.Logger = logger

	if a.StatePath != "" {
		cfg.StatePath = a.StatePath
	}
	if a.HttpPort != 0 {
		cfg.HTTP.Port = a.HttpPort
	}

	state, err := audit.LoadSession(cfg.StatePath)
	if err != nil {
		a.Logger.Warn("ignoring unreadable session file", zap.String("path", cfg.StatePath), zap.Error(err))
	}
	if state != nil {
		a.Session, err = audit.RestoreSession(*state)
		if err != nil {
			return fmt.Errorf("restoring session from %s: %w", cfg.StatePath, err)
		}
		a.Logger.Info("restored session",
			zap.String("path", cfg.StatePath),
			zap.String("id", a.Session.ID()),
			zap.Int("trials", len(state.Trials)))
	} else {
		a.Session, err = cfg.NewSession()
		if err != nil {
			return fmt.Errorf("building session from config: %w", err)
		}
	}

	return a.applyOverrides()
}

func (a *App) loadConfig() (*audit.Config, error) {
	path := a.ConfigFile
	if path == "" {
		path = defaultConfigFile
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigFile {
		return audit.DefaultConfig(), nil
	}
	cfg, err := audit.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// applyOverrides applies settings before values so a --sensor given with
// --resolution CUSTOM is accepted.
func (a *App) applyOverrides() error {
	s := a.Session

	if a.Resolution != "" {
		model, err := audit.ParseResolutionModel(a.Resolution)
		if err != nil {
			return err
		}
		if err := s.SetResolutionModel(model); err != nil {
			return err
		}
	}
	if a.Profile != "" {
		if err := s.SetConservatismProfile(audit.ConservatismProfile(a.Profile)); err != nil {
			return err
		}
	}
	if a.CoverageSet || a.CoverageFactor != 0 {
		if err := s.SetCoverageFactor(a.CoverageFactor); err != nil {
			return err
		}
	}
	if a.Trials != "" {
		values, err := parseFloatList(a.Trials)
		if err != nil {
			return fmt.Errorf("--trials: %w", err)
		}
		s.ClearTrials()
		if err := s.AddTrials(values...); err != nil {
			return fmt.Errorf("--trials: %w", err)
		}
	}
	if a.Sources != "" {
		sources, err := parseSources(a.Sources)
		if err != nil {
			return fmt.Errorf("--sources: %w", err)
		}
		for _, src := range sources {
			err := s.SetErrorSource(src.Name, src.Value)
			if errors.Is(err, audit.ErrSourceNotFound) {
				err = s.AddErrorSource(src.Name, src.Value)
			}
			if err != nil {
				return fmt.Errorf("--sources: %w", err)
			}
		}
	}
	if a.Sensor != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(a.Sensor), 64)
		if err != nil {
			return fmt.Errorf("--sensor: %w", err)
		}
		if err := s.SetSensorUncertainty(v); err != nil {
			return fmt.Errorf("--sensor: %w", err)
		}
	}
	return nil
}

// RunBudget prints the live audit panel and contributor list
func (a *App) RunBudget() error {
	if err := a.setup(); err != nil {
		return err
	}
	b := a.Session.Budget()

	if strings.EqualFold(a.Format, "json") {
		msg := audit.NewBudgetMessage(a.Session.ID(), a.Session.Settings(), b)
		return a.writeOutput("", func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(msg)
		})
	}

	settings := a.Session.Settings()
	sources := a.Session.ErrorSources()
	return a.writeOutput("", func(w io.Writer) error {
		fmt.Fprintf(w, "Resolution: %s (%s profile)\n", settings.Resolution.Label(), settings.Profile.Label())
		fmt.Fprintln(w, "Error sources:")
		for _, src := range sources {
			fmt.Fprintf(w, "  - %s: ±%.4fm\n", src.Label(), src.Value)
		}
		fmt.Fprintln(w)
		_, err := io.WriteString(w, audit.FormatSummary(b))
		return err
	})
}

// RunReport prints the methodology report. With no trials it logs a warning
// and returns audit.ErrNoData without writing anything.
func (a *App) RunReport() error {
	if err := a.setup(); err != nil {
		return err
	}
	text, err := a.Session.Report()
	if err != nil {
		a.Logger.Warn("no report produced", zap.Error(err))
		return err
	}
	return a.writeOutput("", func(w io.Writer) error {
		_, err := io.WriteString(w, text+"\n")
		return err
	})
}

// RunChart renders the budget bar chart as SVG (default) or PNG
func (a *App) RunChart() error {
	if err := a.setup(); err != nil {
		return err
	}
	snap := a.Session.Snapshot()
	chart := audit.NewBudgetChart(snap.Budget, snap.State.ErrorSources)

	format := strings.ToLower(a.Format)
	if format == "" {
		format = "svg"
	}
	switch format {
	case "svg":
		return a.writeOutput("budget.svg", chart.RenderToSVG)
	case "png":
		return a.writeOutput("budget.png", chart.RenderToPNG)
	default:
		return fmt.Errorf("unsupported chart format %q (use svg or png)", a.Format)
	}
}

// RunCard renders the summary card PNG
func (a *App) RunCard() error {
	if err := a.setup(); err != nil {
		return err
	}
	title := a.Session.Settings().Resolution.Label()
	b := a.Session.Budget()
	return a.writeOutput("card.png", func(w io.Writer) error {
		return audit.RenderSummaryCard(w, title, b)
	})
}

// RunListModels prints the resolution catalog and profiles
func (a *App) RunListModels() error {
	fmt.Fprintln(a.Out, "Resolution models:")
	for _, m := range audit.Catalog {
		fmt.Fprintf(a.Out, "  %-11s %-33s %s\n", m.ID, m.Label, m.Description)
	}
	fmt.Fprintln(a.Out, "\nProfiles:")
	for _, p := range audit.Profiles {
		fmt.Fprintf(a.Out, "  %-11s %s\n", p, p.Label())
	}
	return nil
}

// RunService runs the MQTT and/or HTTP surfaces until interrupted
func (a *App) RunService() error {
	if err := a.setup(); err != nil {
		return err
	}
	defer func() { _ = a.Logger.Sync() }()

	metrics, err := audit.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	a.Metrics = metrics

	if a.MqttMode {
		client, err := audit.InitMQTT(a.Config, a.handleReadings, a.Logger)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if client == nil {
			return fmt.Errorf("MQTT broker not configured")
		}
		a.MQTTClient = client
		a.Publisher = a.newPublisher(client.GetClient())
	}

	if a.HttpMode {
		handler := newHTTPServer(a.Session, a.Metrics, a.afterChange, a.Logger)
		addr := fmt.Sprintf(":%d", a.Config.HTTP.Port)
		go func() {
			a.Logger.Info("HTTP server starting", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, handler); err != nil {
				a.Logger.Fatal("HTTP server error", zap.Error(err))
			}
		}()
	}

	a.afterChange("startup")
	a.printServiceInfo()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintln(a.Out, "\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	a.saveSession()
	fmt.Fprintln(a.Out, "Service stopped")
	return nil
}

// newPublisher builds the budget publisher with the configured QoS and retain flag
func (a *App) newPublisher(client mqtt.Client) *audit.Publisher {
	p := audit.NewPublisher(client, a.Config.MQTT.PublishPrefix, a.Logger)
	p.SetQoS(a.Config.MQTT.QoS)
	if a.Config.MQTT.Retain != nil {
		p.SetRetain(*a.Config.MQTT.Retain)
	}
	return p
}

func (a *App) printServiceInfo() {
	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")
	fmt.Fprintf(a.Out, "Session: %s\n", a.Session.ID())

	if a.Publisher != nil {
		fmt.Fprintln(a.Out, "\nMQTT:")
		fmt.Fprintf(a.Out, "  Readings topic: %s\n", a.Config.MQTT.ReadingsTopic)
		fmt.Fprintf(a.Out, "  Publishing to: %s/budget, %s/report\n", a.Publisher.Prefix(), a.Publisher.Prefix())
	}
	if a.HttpMode {
		fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", a.Config.HTTP.Port)
		fmt.Fprintln(a.Out, "  GET /budget          - Uncertainty budget (JSON)")
		fmt.Fprintln(a.Out, "  GET /report          - Methodology report")
		fmt.Fprintln(a.Out, "  GET /budget.svg      - Budget chart")
		fmt.Fprintln(a.Out, "  GET /card.png        - Summary card")
		fmt.Fprintln(a.Out, "  GET /metrics         - Prometheus metrics")
	}
	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")
}

// handleReadings appends readings received over MQTT
func (a *App) handleReadings(values []float64) {
	if err := a.Session.AddTrials(values...); err != nil {
		a.Logger.Warn("rejected readings", zap.Float64s("values", values), zap.Error(err))
		return
	}
	a.afterChange("mqtt_readings")
}

// afterChange records metrics, publishes the new budget and persists the
// session. It runs after every successful mutation from any surface. Calls
// are serialized and each one publishes and saves the latest state.
func (a *App) afterChange(trigger string) {
	a.changeMu.Lock()
	defer a.changeMu.Unlock()

	snap := a.Session.Snapshot()
	a.Metrics.ObserveBudget(trigger, snap.Budget)

	if a.Publisher != nil {
		msg := audit.NewBudgetMessage(snap.State.ID, snap.Settings, snap.Budget)
		if err := a.Publisher.PublishBudget(msg); err != nil {
			a.Logger.Warn("publishing budget", zap.Error(err))
		}
		if snap.Report != "" {
			if err := a.Publisher.PublishReport(snap.Report); err != nil {
				a.Logger.Warn("publishing report", zap.Error(err))
			}
		}
	}

	a.saveState(snap.State)
}

// saveSession persists the current session, serialized with afterChange
func (a *App) saveSession() {
	a.changeMu.Lock()
	defer a.changeMu.Unlock()
	a.saveState(a.Session.State())
}

func (a *App) saveState(state audit.SessionState) {
	if a.Config == nil || a.Config.StatePath == "" {
		return
	}
	if err := audit.SaveSession(a.Config.StatePath, &state); err != nil {
		a.Logger.Error("saving session", zap.String("path", a.Config.StatePath), zap.Error(err))
	}
}

// writeOutput writes to OutputFile, to defaultFile when no output was
// given, or to Out when both are empty or OutputFile is "-".
func (a *App) writeOutput(defaultFile string, render func(io.Writer) error) error {
	path := a.OutputFile
	if path == "" {
		path = defaultFile
	}
	if path == "" || path == "-" {
		return render(a.Out)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Wrote %s\n", path)
	return nil
}

// parseFloatList parses "1.5, 2, 3.25"
func parseFloatList(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		values = append(values, v)
	}
	return values, nil
}

// parseSources parses "Camera Height=0.02,Lens=0.01". Names may contain
// spaces; the value follows the last '='.
func parseSources(s string) ([]audit.ErrorSource, error) {
	var sources []audit.ErrorSource
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idx := strings.LastIndex(entry, "=")
		if idx <= 0 {
			return nil, fmt.Errorf("expected name=value, got %q", entry)
		}
		name := strings.TrimSpace(entry[:idx])
		v, err := strconv.ParseFloat(strings.TrimSpace(entry[idx+1:]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", name, err)
		}
		sources = append(sources, audit.UserSource(name, v))
	}
	return sources, nil
}
