package analysis

import (
	"fmt"
	"math"

	"github.com/san-kum/cosim/internal/recorder"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type ColumnStats struct {
	Column string
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	First  float64
	Final  float64
}

func Summarize(traj *recorder.Trajectory, column string) (ColumnStats, error) {
	data, err := traj.Column(column)
	if err != nil {
		return ColumnStats{}, err
	}
	if len(data) == 0 {
		return ColumnStats{}, fmt.Errorf("column %s has no samples", column)
	}
	s := ColumnStats{
		Column: column,
		Min:    floats.Min(data),
		Max:    floats.Max(data),
		Mean:   stat.Mean(data, nil),
		First:  data[0],
		Final:  data[len(data)-1],
	}
	if len(data) > 1 {
		s.StdDev = stat.StdDev(data, nil)
	}
	return s, nil
}

// SettlingTime is the time of the first sample after which the column stays
// within band (relative to its total swing) of its final value. It reports
// false when the last two samples already differ by more than the band.
func SettlingTime(traj *recorder.Trajectory, column string, band float64) (float64, bool) {
	data, err := traj.Column(column)
	if err != nil || len(data) == 0 {
		return 0, false
	}
	times := traj.Times()
	final := data[len(data)-1]
	tol := band * (floats.Max(data) - floats.Min(data))

	settled := len(data) - 1
	for i := len(data) - 1; i >= 0; i-- {
		if math.Abs(data[i]-final) > tol {
			break
		}
		settled = i
	}
	if settled == len(data)-1 && len(data) > 1 {
		return times[settled], false
	}
	return times[settled], true
}
