package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/cosim/internal/recorder"
	"github.com/san-kum/cosim/internal/system"
)

type PlotOptions struct {
	Width  int
	Height int
	// Columns to draw; empty means all.
	Columns []string
}

func DefaultPlotOptions() PlotOptions {
	return PlotOptions{Width: 80, Height: 10}
}

// PlotTrajectory draws one chart per column against the row index. Columns
// with fewer than two finite samples are listed instead of charted.
func PlotTrajectory(traj *recorder.Trajectory, opts PlotOptions) (string, error) {
	columns := opts.Columns
	if len(columns) == 0 {
		columns = traj.Columns()
	}
	times := traj.Times()

	var b strings.Builder
	for _, c := range columns {
		data, err := traj.Column(c)
		if err != nil {
			return "", err
		}
		data = finite(data)
		if len(data) < 2 {
			fmt.Fprintf(&b, "%s: %s\n\n", c, formatValues(data))
			continue
		}

		caption := c
		if len(times) > 1 {
			caption = fmt.Sprintf("%s  (t = %.4g .. %.4g)", c, times[0], times[len(times)-1])
		}
		b.WriteString(asciigraph.Plot(data,
			asciigraph.Height(opts.Height),
			asciigraph.Width(opts.Width),
			asciigraph.Caption(caption),
		))
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func finite(data []float64) []float64 {
	out := data[:0:0]
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func formatValues(data []float64) string {
	if len(data) == 0 {
		return "no data"
	}
	parts := make([]string, len(data))
	for i, v := range data {
		parts[i] = fmt.Sprintf("%.6g", v)
	}
	return strings.Join(parts, ", ")
}

// Describe summarises how an assembly is evaluated and solved.
func Describe(asm *system.Assembly) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(asm.Name()) + "\n\n")

	b.WriteString(MetricLabel.Render("evaluation order") + "\n")
	for i, c := range asm.Order() {
		if c == "" {
			c = "<root>"
		}
		fmt.Fprintf(&b, "  %2d  %s\n", i+1, c)
	}

	if fb := asm.Feedback(); len(fb) > 0 {
		b.WriteString("\n" + MetricLabel.Render("feedback") + "\n")
		for _, e := range fb {
			fmt.Fprintf(&b, "  %s -> %s\n", e.From, e.To)
		}
	}

	if us := asm.Unknowns(); len(us) > 0 {
		b.WriteString("\n" + MetricLabel.Render("unknowns") + "\n")
		for _, u := range us {
			fmt.Fprintf(&b, "  %-24s init %-10.4g [%g, %g]\n", u.Path, u.Init, u.Lower, u.Upper)
		}
	}
	if eqs := asm.Equations(); len(eqs) > 0 {
		b.WriteString("\n" + MetricLabel.Render("equations") + "\n")
		for _, e := range eqs {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	if sts := asm.States(); len(sts) > 0 {
		b.WriteString("\n" + MetricLabel.Render("states") + "\n")
		for _, s := range sts {
			fmt.Fprintf(&b, "  d(%s)/dt = %s\n", s.Path, s.Derivative)
		}
	}
	return b.String()
}
