// Package export renders trajectories to vector graphics.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/san-kum/cosim/internal/recorder"
)

var palette = []string{"#00ff88", "#00ccff", "#ffcc00", "#ff4444", "#ff00ff", "#ffffff"}

type SVGOptions struct {
	Width  int
	Height int
	// X is the column on the horizontal axis; empty means time.
	X string
	// Ys are the plotted columns; empty means all but X.
	Ys []string
}

func DefaultSVGOptions() SVGOptions {
	return SVGOptions{Width: 800, Height: 400}
}

// TrajectorySVG draws one polyline per column on shared axes.
func TrajectorySVG(w io.Writer, traj *recorder.Trajectory, opts SVGOptions) error {
	if traj.Len() < 2 {
		return fmt.Errorf("need at least 2 rows to plot, have %d", traj.Len())
	}

	xs := traj.Times()
	if opts.X != "" {
		var err error
		if xs, err = traj.Column(opts.X); err != nil {
			return err
		}
	}
	ys := opts.Ys
	if len(ys) == 0 {
		for _, c := range traj.Columns() {
			if c != opts.X {
				ys = append(ys, c)
			}
		}
	}

	series := make([][]float64, len(ys))
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, c := range ys {
		col, err := traj.Column(c)
		if err != nil {
			return err
		}
		series[i] = col
		for _, v := range col {
			if finite(v) {
				minY, maxY = math.Min(minY, v), math.Max(maxY, v)
			}
		}
	}
	minX, maxX := math.Inf(1), math.Inf(-1)
	for _, v := range xs {
		if finite(v) {
			minX, maxX = math.Min(minX, v), math.Max(maxX, v)
		}
	}
	if math.IsInf(minY, 1) || math.IsInf(minX, 1) {
		return fmt.Errorf("no finite values to plot")
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	rangeY *= 1.2

	width, height := float64(opts.Width), float64(opts.Height)
	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, opts.Width, opts.Height, opts.Width, opts.Height)

	for i, col := range series {
		color := palette[i%len(palette)]
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="`, color)
		move, sep := true, ""
		for j, v := range col {
			if !finite(v) || !finite(xs[j]) {
				move = true
				continue
			}
			x := (xs[j] - minX) / rangeX * width
			y := height - (v-minY)/rangeY*height
			if move {
				fmt.Fprintf(&sb, "%sM%.1f,%.1f", sep, x, y)
				move, sep = false, " "
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString("\"/>\n")
		fmt.Fprintf(&sb, `<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 16*(i+1), color, escape(ys[i]))
	}
	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
