package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

const defaultConfigFile = "fsaudit.yaml"

// AppOptions carries the parsed command line into the App
type AppOptions struct {
	ConfigFile     string
	StatePath      string
	Trials         string
	Resolution     string
	Profile        string
	CoverageFactor int
	CoverageSet    bool // --k was given explicitly, even as 0
	Sources        string
	Sensor         string
	OutputFile     string
	Format         string
	HttpPort       int
	LogLevel       string
	LogFormat      string
	Out            io.Writer

	Budget     bool
	Report     bool
	Chart      bool
	Card       bool
	ListModels bool
	MqttMode   bool
	HttpMode   bool
}

// AppRunner is the set of modes run dispatches to
type AppRunner interface {
	ApplyOptions(opts AppOptions)
	RunBudget() error
	RunReport() error
	RunChart() error
	RunCard() error
	RunListModels() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if err == flag.ErrHelp {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, app AppRunner) error {
	fs := flag.NewFlagSet("fsaudit", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", defaultConfigFile, "Path to configuration file")
	fs.StringVar(&opts.StatePath, "state", "", "Path to persisted session file (default from config or .fsaudit-session.json)")
	fs.StringVar(&opts.Trials, "trials", "", "Comma-separated trial readings in meters; replaces stored trials")
	fs.StringVar(&opts.Resolution, "resolution", "", "Resolution model id (see --list-models)")
	fs.StringVar(&opts.Profile, "profile", "", "Conservatism profile: OPTIMISTIC, BALANCED or DEFENSIVE")
	fs.IntVar(&opts.CoverageFactor, "k", 0, "Coverage factor: 1, 2 or 3")
	fs.StringVar(&opts.Sources, "sources", "", "User error sources: name=value,name=value")
	fs.StringVar(&opts.Sensor, "sensor", "", "Manual sensor uncertainty in meters (CUSTOM model only)")
	fs.StringVar(&opts.OutputFile, "output", "", "Output file (default stdout for text, budget.svg/budget.png/card.png for images)")
	fs.StringVar(&opts.Format, "format", "", "Output format: text or json for --budget, svg or png for --chart")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default from config or 8080)")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.LogFormat, "log-format", "", "Log format: console or json")

	fs.BoolVar(&opts.Budget, "budget", false, "Print the uncertainty budget and exit")
	fs.BoolVar(&opts.Report, "report", false, "Print the methodology report and exit")
	fs.BoolVar(&opts.Chart, "chart", false, "Render the budget chart and exit")
	fs.BoolVar(&opts.Card, "card", false, "Render the summary card PNG and exit")
	fs.BoolVar(&opts.ListModels, "list-models", false, "List resolution models and profiles")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode (readings in, budget out)")
	fs.BoolVar(&opts.HttpMode, "http", false, "Run the HTTP API")

	if err := fs.Parse(args); err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "k" {
			opts.CoverageSet = true
		}
	})

	fmt.Fprintf(out, "fsaudit version: %s\n", Version)

	opts.Out = out
	app.ApplyOptions(opts)

	switch {
	case opts.ListModels:
		return app.RunListModels()
	case opts.Budget:
		return app.RunBudget()
	case opts.Report:
		return app.RunReport()
	case opts.Chart:
		return app.RunChart()
	case opts.Card:
		return app.RunCard()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	}

	fmt.Fprintln(out, "fsaudit ready")
	fmt.Fprintln(out, "Use --budget to print the uncertainty budget")
	fmt.Fprintln(out, "Use --report to print the methodology report")
	fmt.Fprintln(out, "Use --chart or --card to render the budget as an image")
	fmt.Fprintln(out, "Use --list-models to see resolution models")
	fmt.Fprintln(out, "Use --mqtt and/or --http to run the service")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintf(out, "  %s - session defaults, MQTT and HTTP settings\n", defaultConfigFile)
	fmt.Fprintln(out, "  .fsaudit-session.json - persisted trials and error sources")
	return nil
}
