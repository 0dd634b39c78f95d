package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/san-kum/cosim/internal/experiment"
	"github.com/san-kum/cosim/internal/export"
	"github.com/san-kum/cosim/internal/storage"
	"github.com/san-kum/cosim/internal/telemetry"
	"github.com/san-kum/cosim/internal/viz"
	"github.com/spf13/cobra"
)

func runModel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	ctx, log, cancel, err := setup(cfg.Log)
	if err != nil {
		return err
	}
	defer cancel()

	exp, err := experiment.New(cfg, nil)
	if err != nil {
		return err
	}
	runID := storage.NewRunID(cfg.Model)
	ctx = telemetry.WithRun(ctx, log, runID, cfg.Model)

	fmt.Printf("running %s (%s)...\n", cfg.Model, exp.Mode())
	start := time.Now()
	out, runErr := exp.Run(ctx)
	if out == nil {
		return runErr
	}
	elapsed := time.Since(start)

	if runErr != nil {
		fmt.Printf("run failed: %v\n", runErr)
	}
	fmt.Printf("completed in %v\n", elapsed)
	if out.Steady != nil {
		fmt.Printf("converged: %v after %d iterations (%d graph passes)\n", out.Steady.Converged, out.Steady.Iterations, out.Steady.GraphPasses)
	}
	if out.Transient != nil {
		fmt.Printf("steps: %d, rejected: %d, failed: %d\n", out.Transient.Steps, out.Transient.Rejected, len(out.Transient.Failures))
	}
	printLastRow(out)
	printMetrics(out.Metrics)

	if !noSave && out.Trajectory.Len() > 0 {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		meta := out.Metadata(cfg)
		meta.ID = runID
		if _, err := st.Save(meta, cfg, out.Trajectory); err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}
	return runErr
}

func printLastRow(out *experiment.Outcome) {
	if out.Trajectory.Len() == 0 {
		return
	}
	row := out.Trajectory.At(out.Trajectory.Len() - 1)
	fmt.Println("\nfinal values:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, c := range out.Trajectory.Columns() {
		fmt.Fprintf(w, "  %s\t%.8g\n", c, row.Values[i])
	}
	w.Flush()
}

func printMetrics(metrics map[string]float64) {
	if len(metrics) == 0 {
		return
	}
	names := make([]string, 0, len(metrics))
	for k := range metrics {
		names = append(names, k)
	}
	sort.Strings(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6g\n", name, metrics[name])
	}
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tMODE\tTIME\tSTEPS\tCONVERGED\tINTEG")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%v\t%s\n",
			run.ID,
			run.Model,
			run.Mode,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Converged,
			run.Integrator,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	traj, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	if traj.Len() == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s (%s)\n", meta.Model, meta.Mode)
	fmt.Printf("rows: %d\n\n", traj.Len())

	opts := viz.DefaultPlotOptions()
	opts.Columns = columns
	chart, err := viz.PlotTrajectory(traj, opts)
	if err != nil {
		return err
	}
	fmt.Print(chart)
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	runID := args[0]
	traj, err := storage.New(dataDir).LoadTrajectory(runID)
	if err != nil {
		return err
	}

	path := outFile
	if path == "" {
		path = runID + ".csv"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := storage.WriteCSV(f, traj); err != nil {
		return err
	}
	fmt.Printf("exported %d rows to %s\n", traj.Len(), path)
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	traj, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	path := outFile
	if path == "" {
		path = runID + ".json"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := storage.ExportJSON(f, *meta, traj); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", path)
	return nil
}

func exportSVG(cmd *cobra.Command, args []string) error {
	runID := args[0]
	traj, err := storage.New(dataDir).LoadTrajectory(runID)
	if err != nil {
		return err
	}

	path := outFile
	if path == "" {
		path = runID + ".svg"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	opts := export.DefaultSVGOptions()
	opts.X, opts.Ys = phaseX, columns
	if err := export.TrajectorySVG(f, traj, opts); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", path)
	return nil
}
