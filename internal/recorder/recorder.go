// Package recorder samples named variables into a Trajectory.
package recorder

import (
	"fmt"
	"path"
	"strings"

	"github.com/san-kum/cosim/internal/dynamo"
)

// Source is what a Recorder reads from; *system.Assembly implements it.
type Source interface {
	Paths() []string
	Value(path string) (float64, error)
	Suggest(path string) string
}

type Recorder struct {
	src     Source
	columns []string
	traj    *Trajectory
}

// New validates every include against src. Includes may be glob patterns
// ("hsink.*"), which must match at least one variable.
func New(src Source, includes ...string) (*Recorder, error) {
	seen := make(map[string]bool)
	var columns []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			columns = append(columns, p)
		}
	}

	for _, inc := range includes {
		if !strings.ContainsAny(inc, "*?[") {
			if _, err := src.Value(inc); err != nil {
				return nil, &dynamo.AssemblyError{Path: inc, Err: dynamo.ErrUnknownPath, Hint: src.Suggest(inc)}
			}
			add(inc)
			continue
		}

		matched := false
		for _, p := range src.Paths() {
			ok, err := path.Match(inc, p)
			if err != nil {
				return nil, &dynamo.AssemblyError{Path: inc, Err: fmt.Errorf("%w: %v", dynamo.ErrUnknownPath, err)}
			}
			if ok {
				matched = true
				add(p)
			}
		}
		if !matched {
			return nil, &dynamo.AssemblyError{Path: inc, Err: dynamo.ErrUnknownPath, Hint: "pattern matches no variable"}
		}
	}

	return &Recorder{src: src, columns: columns, traj: NewTrajectory(columns)}, nil
}

func (r *Recorder) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Record appends the current value of every column.
func (r *Recorder) Record(index int, t float64) error {
	values := make([]float64, len(r.columns))
	for i, c := range r.columns {
		v, err := r.src.Value(c)
		if err != nil {
			return err
		}
		values[i] = v
	}
	r.traj.append(Row{Index: index, Time: t, Values: values})
	return nil
}

// Reset starts a new trajectory. Trajectories handed out earlier are left
// untouched.
func (r *Recorder) Reset() {
	r.traj = NewTrajectory(r.columns)
}

func (r *Recorder) Trajectory() *Trajectory { return r.traj }
