package recorder

import (
	"fmt"

	"github.com/san-kum/cosim/internal/dynamo"
)

// TimeColumn is the key under which Row maps expose the sample time.
const TimeColumn = "time"

type Row struct {
	Index  int
	Time   float64
	Values []float64
}

// Trajectory is an ordered sequence of rows. Rows are only appended by the
// recorder; readers get copies.
type Trajectory struct {
	columns []string
	col     map[string]int
	rows    []Row
}

func NewTrajectory(columns []string) *Trajectory {
	t := &Trajectory{columns: append([]string(nil), columns...), col: make(map[string]int, len(columns))}
	for i, c := range columns {
		t.col[c] = i
	}
	return t
}

// FromRows rebuilds a trajectory, for example one loaded from disk.
func FromRows(columns []string, rows []Row) (*Trajectory, error) {
	t := NewTrajectory(columns)
	for i, r := range rows {
		if len(r.Values) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d columns", dynamo.ErrDimensionMismatch, i, len(r.Values), len(columns))
		}
		t.append(Row{Index: r.Index, Time: r.Time, Values: append([]float64(nil), r.Values...)})
	}
	return t, nil
}

func (t *Trajectory) append(r Row) { t.rows = append(t.rows, r) }

func (t *Trajectory) Columns() []string {
	return append([]string(nil), t.columns...)
}

func (t *Trajectory) Len() int { return len(t.rows) }

func (t *Trajectory) At(i int) Row {
	r := t.rows[i]
	r.Values = append([]float64(nil), r.Values...)
	return r
}

// Row returns sample i keyed by path, plus "time".
func (t *Trajectory) Row(i int) map[string]float64 {
	r := t.rows[i]
	m := make(map[string]float64, len(t.columns)+1)
	for j, c := range t.columns {
		m[c] = r.Values[j]
	}
	m[TimeColumn] = r.Time
	return m
}

func (t *Trajectory) Last() (Row, bool) {
	if len(t.rows) == 0 {
		return Row{}, false
	}
	return t.At(len(t.rows) - 1), true
}

func (t *Trajectory) Times() []float64 {
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Time
	}
	return out
}

// Column returns one column over all rows; "time" is accepted.
func (t *Trajectory) Column(name string) ([]float64, error) {
	if name == TimeColumn {
		return t.Times(), nil
	}
	j, ok := t.col[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not recorded", dynamo.ErrUnknownPath, name)
	}
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Values[j]
	}
	return out, nil
}

func (t *Trajectory) Value(i int, name string) (float64, error) {
	if name == TimeColumn {
		return t.rows[i].Time, nil
	}
	j, ok := t.col[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s is not recorded", dynamo.ErrUnknownPath, name)
	}
	return t.rows[i].Values[j], nil
}
