package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/san-kum/cosim/internal/analysis"
	"github.com/san-kum/cosim/internal/storage"
	"github.com/spf13/cobra"
)

func analyzeRun(cmd *cobra.Command, args []string) error {
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

	cols := columns
	if len(cols) == 0 {
		cols = traj.Columns()
	}

	fmt.Printf("run: %s (%s, %d rows)\n\n", meta.ID, meta.Model, traj.Len())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tMIN\tMAX\tMEAN\tSTDDEV\tFINAL\tSETTLED\tDOMINANT HZ")
	for _, c := range cols {
		s, err := analysis.Summarize(traj, c)
		if err != nil {
			return err
		}
		settled := "-"
		if ts, ok := analysis.SettlingTime(traj, c, band); ok {
			settled = fmt.Sprintf("%.4g", ts)
		}
		dominant := "-"
		if spec, err := analysis.Spectrum(traj, c); err == nil {
			if f, amp := spec.Dominant(); amp > 0 {
				dominant = fmt.Sprintf("%.4g", f)
			}
		}
		fmt.Fprintf(w, "%s\t%.6g\t%.6g\t%.6g\t%.4g\t%.6g\t%s\t%s\n", c, s.Min, s.Max, s.Mean, s.StdDev, s.Final, settled, dominant)
	}
	return w.Flush()
}

func phasePlot(cmd *cobra.Command, args []string) error {
	traj, err := storage.New(dataDir).LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	out, err := analysis.PhasePortrait(traj, phaseX, phaseY, 70, 24)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
