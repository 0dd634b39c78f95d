package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/cosim/internal/automation"
	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/experiment"
	"github.com/san-kum/cosim/internal/optim"
	"github.com/san-kum/cosim/internal/solver"
	"github.com/san-kum/cosim/internal/storage"
	"github.com/san-kum/cosim/internal/telemetry"
	"github.com/san-kum/cosim/internal/viz"
	"github.com/spf13/cobra"
)

func listModels(cmd *cobra.Command, args []string) error {
	reg := experiment.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tMODE\tPRESETS")
	for _, name := range reg.ListModels() {
		m, err := reg.GetModel(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, m.Mode(), strings.Join(config.ListPresets(name), ", "))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nintegrators: %s\n", strings.Join(reg.ListIntegrators(), ", "))
	fmt.Printf("metrics: %s\n", strings.Join(reg.ListMetrics(), ", "))
	return nil
}

func showGraph(cmd *cobra.Command, args []string) error {
	m, err := experiment.NewRegistry().GetModel(args[0])
	if err != nil {
		return err
	}
	asm, err := m.Build()
	if err != nil {
		return err
	}
	fmt.Print(viz.Describe(asm))
	return nil
}

func optimizeModel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	o := cfg.Optimize
	if o == nil {
		return fmt.Errorf("model %s has no optimize section; use a preset or config file", cfg.Model)
	}
	ctx, log, cancel, err := setup(cfg.Log)
	if err != nil {
		return err
	}
	defer cancel()
	ctx = telemetry.WithRun(ctx, log, storage.NewRunID(cfg.Model), cfg.Model)

	exp, err := experiment.New(cfg, nil)
	if err != nil {
		return err
	}
	steady := solver.NewSteady(exp.Assembly(), cfg.Solver)
	for k, v := range cfg.Params {
		if err := exp.Assembly().SetValue(k, v); err != nil {
			return fmt.Errorf("param %s: %w", k, err)
		}
	}
	obj, err := optim.AssemblyObjective(steady, o.Vars, o.Objective)
	if err != nil {
		return err
	}

	var res *optim.Result
	switch o.Method {
	case "grid":
		points := o.Points
		if points == 0 {
			points = 11
		}
		ranges := make([][]float64, len(o.Vars))
		for i := range o.Vars {
			ranges[i] = optim.Linspace(o.Lower[i], o.Upper[i], points)
		}
		res, err = optim.NewGridSearch(o.Vars, ranges).Search(ctx, obj, o.Objective)
	default:
		d := optim.NewDescent()
		if o.MaxIter > 0 {
			d.MaxIter = o.MaxIter
		}
		if o.Step > 0 {
			d.Step = o.Step
		}
		if o.Tol > 0 {
			d.Tol = o.Tol
		}
		d.Lower, d.Upper = o.Lower, o.Upper
		x0 := make([]float64, len(o.Vars))
		for i, v := range o.Vars {
			if x0[i], err = exp.Assembly().Value(v); err != nil {
				return err
			}
			if init, ok := cfg.Init[v]; ok {
				x0[i] = init
			}
		}
		res, err = d.Minimize(ctx, obj, x0, o.Vars, o.Objective)
	}
	if res == nil {
		return err
	}

	fmt.Printf("%s: %s = %.8g after %d iterations, %d evaluations (converged: %v)\n",
		o.Method, o.Objective, res.Value, res.Iterations, res.Evaluations, res.Converged)
	for i, v := range o.Vars {
		fmt.Printf("  %s = %.8g\n", v, res.X[i])
	}
	if err != nil {
		return err
	}

	if !noSave && res.Trace != nil {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(storage.RunMetadata{
			Model:      cfg.Model,
			Mode:       dynamo.ModeSteady,
			Converged:  res.Converged,
			Iterations: res.Iterations,
			Metrics:    map[string]float64{o.Objective: res.Value, "evaluations": float64(res.Evaluations)},
		}, cfg, res.Trace)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}
	return nil
}

func sweepModel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	ctx, _, cancel, err := setup(cfg.Log)
	if err != nil {
		return err
	}
	defer cancel()

	outputs := cfg.Record
	if len(outputs) == 0 {
		m, err := experiment.NewRegistry().GetModel(cfg.Model)
		if err != nil {
			return err
		}
		outputs = m.Record()
	}

	results, err := automation.RunSweep(ctx, &automation.ParameterSweep{
		Base:      cfg,
		ParamName: sweepParam,
		ParamMin:  sweepFrom,
		ParamMax:  sweepTo,
		NumSteps:  sweepSteps,
		Outputs:   outputs,
	}, nil)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tCONVERGED\t%s\n", strings.ToUpper(sweepParam), strings.Join(outputs, "\t"))
	for _, r := range results {
		vals := make([]string, len(outputs))
		for i, o := range outputs {
			if v, ok := r.Outputs[o]; ok {
				vals[i] = fmt.Sprintf("%.6g", v)
			} else {
				vals[i] = "-"
			}
		}
		fmt.Fprintf(w, "%.6g\t%v\t%s\n", r.ParamValue, r.Converged, strings.Join(vals, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	traj, err := automation.SweepTrajectory(results, outputs)
	if err != nil {
		return err
	}
	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(storage.RunMetadata{
			Model:     cfg.Model,
			Mode:      dynamo.ModeSteady,
			Steps:     len(results),
			Converged: allConverged(results),
		}, cfg, traj)
		if err != nil {
			return err
		}
		fmt.Printf("\nrun id: %s (time column holds %s)\n", runID, sweepParam)
	}
	return nil
}

func allConverged(results []automation.SweepResult) bool {
	for _, r := range results {
		if !r.Converged {
			return false
		}
	}
	return true
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	ctx, _, cancel, err := setup(telemetry.DefaultLogConfig())
	if err != nil {
		return err
	}
	defer cancel()

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	results, err := automation.RunScenario(ctx, sc, nil, st)
	for _, r := range results {
		line := fmt.Sprintf("step %d: converged=%v", r.Step, r.Outcome.Converged())
		if r.RunID != "" {
			line += " saved as " + r.RunID
		}
		fmt.Println(line)
	}
	return err
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	// The live view owns the terminal; keep logs quiet unless asked.
	if logLevel == "" {
		cfg.Log.Level = "error"
	}
	ctx, _, cancel, err := setup(cfg.Log)
	if err != nil {
		return err
	}
	defer cancel()

	exp, err := experiment.New(cfg, nil)
	if err != nil {
		return err
	}
	if exp.Mode() != dynamo.ModeTransient {
		return fmt.Errorf("live view needs a transient run; %s is %s", cfg.Model, exp.Mode())
	}

	watched := exp.RecordPaths()
	for _, p := range watched {
		if strings.ContainsAny(p, "*?[") {
			return fmt.Errorf("live view needs plain paths, got pattern %q", p)
		}
	}
	p := tea.NewProgram(viz.NewLiveModel(cfg.Model, watched))
	feed, err := viz.NewFeed(p, exp.Assembly(), watched, frameRate)
	if err != nil {
		return err
	}
	exp.AddObserver(feed)

	go func() {
		out, err := exp.Run(ctx)
		done := viz.DoneMsg{Err: err}
		if out != nil && out.Transient != nil {
			done.Steps, done.Rejected, done.Metrics = out.Transient.Steps, out.Transient.Rejected, out.Metrics
		}
		p.Send(done)
	}()

	_, err = p.Run()
	return err
}
