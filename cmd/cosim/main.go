package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	dataDir    string
	logLevel   string
	logFormat  string
	configFile string
	preset     string
	integrator string
	mode       string
	dt         float64
	duration   float64
	params     map[string]string
	inits      map[string]string
	record     []string
	noSave     bool
	columns    []string
	outFile    string
	frameRate  int
	sweepParam string
	sweepFrom  float64
	sweepTo    float64
	sweepSteps int
	band       float64
	phaseX     string
	phaseY     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cosim",
		Short:         "component network solver and simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".cosim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "solve or simulate a model and store the run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runModel,
	}
	addRunFlags(runCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot recorded columns of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to plot (default all)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "statistics, settling time and spectrum of recorded columns",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to analyze (default all)")
	analyzeCmd.Flags().Float64Var(&band, "band", 0.02, "settling band relative to the column's swing")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "plot one recorded column against another",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().StringVar(&phaseX, "x", "", "column on the x axis")
	phaseCmd.Flags().StringVar(&phaseY, "y", "", "column on the y axis")
	_ = phaseCmd.MarkFlagRequired("x")
	_ = phaseCmd.MarkFlagRequired("y")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default <run_id>.csv)")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "export recorded columns as an SVG chart",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default <run_id>.svg)")
	exportSVGCmd.Flags().StringVar(&phaseX, "x", "", "column on the x axis (default time)")
	exportSVGCmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to draw (default all)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default <run_id>.json)")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models, integrators and metrics",
		RunE:  listModels,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	graphCmd := &cobra.Command{
		Use:   "graph [model]",
		Short: "show evaluation order, feedback loops and equations",
		Args:  cobra.ExactArgs(1),
		RunE:  showGraph,
	}

	optimizeCmd := &cobra.Command{
		Use:   "optimize [model]",
		Short: "minimise a model output over its inputs",
		Args:  cobra.MaximumNArgs(1),
		RunE:  optimizeModel,
	}
	addRunFlags(optimizeCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "rerun a model across values of one parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweepModel,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "", "parameter path to sweep")
	sweepCmd.Flags().Float64Var(&sweepFrom, "from", 0, "first value")
	sweepCmd.Flags().Float64Var(&sweepTo, "to", 1, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 11, "number of values")
	_ = sweepCmd.MarkFlagRequired("param")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted scenario (yaml)",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "simulate a model with a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)
	liveCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate")

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, analyzeCmd, phaseCmd, exportCSVCmd, exportSVGCmd, exportJSONCmd, modelsCmd, presetsCmd, graphCmd, optimizeCmd, sweepCmd, scenarioCmd, liveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&integrator, "integrator", config.DefaultIntegrator, "integrator")
	cmd.Flags().StringVar(&mode, "mode", "", "steady or transient (default: the model's)")
	cmd.Flags().Float64Var(&dt, "dt", 0, "timestep")
	cmd.Flags().Float64Var(&duration, "time", 0, "duration")
	cmd.Flags().StringToStringVar(&params, "set", nil, "parameter values (path=value)")
	cmd.Flags().StringToStringVar(&inits, "init", nil, "initial values (path=value)")
	cmd.Flags().StringSliceVar(&record, "record", nil, "paths or patterns to record")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the result")
}

// loadConfig layers the run file: defaults, then preset, then config file,
// then flags.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	model := ""
	if len(args) > 0 {
		model = args[0]
	}

	if preset != "" {
		if model == "" {
			return nil, fmt.Errorf("--preset needs a model")
		}
		if cfg = config.GetPreset(model, preset); cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if model != "" {
		cfg.Model = model
	}

	flags := cmd.Flags()
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("mode") {
		cfg.Mode = dynamo.Mode(mode)
	}
	if flags.Changed("dt") {
		cfg.Transient.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Transient.T1 = cfg.Transient.T0 + duration
	}
	var err error
	if cfg.Params, err = mergeValues(cfg.Params, params); err != nil {
		return nil, err
	}
	if cfg.Init, err = mergeValues(cfg.Init, inits); err != nil {
		return nil, err
	}
	if len(record) > 0 {
		cfg.Record = record
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, cfg.Validate()
}

func mergeValues(dst map[string]float64, raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return dst, nil
	}
	if dst == nil {
		dst = make(map[string]float64, len(raw))
	}
	for k, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("value for %s: %w", k, err)
		}
		dst[k] = v
	}
	return dst, nil
}

// setup builds the logger and a context cancelled by Ctrl-C.
func setup(lc telemetry.LogConfig) (context.Context, zerolog.Logger, context.CancelFunc, error) {
	if logLevel != "" {
		lc.Level = logLevel
	}
	if logFormat != "" {
		lc.Format = logFormat
	}
	log, err := telemetry.NewLogger(lc, os.Stderr)
	if err != nil {
		return nil, log, nil, err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	return log.WithContext(ctx), log, cancel, nil
}
