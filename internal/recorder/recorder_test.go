package recorder

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/san-kum/cosim/internal/dynamo"
)

type fakeSource map[string]float64

func (f fakeSource) Paths() []string {
	return []string{"cpu.Q_out", "hsink.T", "hsink.Q_out", "use"}
}

func (f fakeSource) Value(p string) (float64, error) {
	v, ok := f[p]
	if !ok {
		return 0, dynamo.ErrUnknownPath
	}
	return v, nil
}

func (f fakeSource) Suggest(p string) string {
	if strings.HasPrefix(p, "cpu.") {
		return `did you mean "cpu.Q_out"?`
	}
	return ""
}

func newSource() fakeSource {
	return fakeSource{"cpu.Q_out": 20, "hsink.T": 40, "hsink.Q_out": 19, "use": 1}
}

func TestNewRejectsMissingPath(t *testing.T) {
	_, err := New(newSource(), "use", "cpu.Q_ot")
	if !errors.Is(err, dynamo.ErrUnknownPath) {
		t.Fatalf("expected ErrUnknownPath, got %v", err)
	}
	if !strings.Contains(err.Error(), "cpu.Q_ot") || !strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error should name the path and a suggestion: %v", err)
	}
}

func TestNewExpandsPatterns(t *testing.T) {
	r, err := New(newSource(), "use", "hsink.*", "use")
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	want := []string{"use", "hsink.T", "hsink.Q_out"}
	if got := r.Columns(); !reflect.DeepEqual(got, want) {
		t.Errorf("columns: got %v, want %v", got, want)
	}

	if _, err := New(newSource(), "fan.*"); !errors.Is(err, dynamo.ErrUnknownPath) {
		t.Errorf("pattern matching nothing should fail, got %v", err)
	}
}

func TestRecordAndReset(t *testing.T) {
	src := newSource()
	r, err := New(src, "use", "hsink.T")
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		src["hsink.T"] = 40 + float64(i)
		if err := r.Record(i, 0.5*float64(i)); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	traj := r.Trajectory()
	if traj.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", traj.Len())
	}
	row := traj.Row(2)
	if row["hsink.T"] != 42 || row["time"] != 1.0 || row["use"] != 1 {
		t.Errorf("unexpected row: %v", row)
	}
	col, err := traj.Column("hsink.T")
	if err != nil || !reflect.DeepEqual(col, []float64{40, 41, 42}) {
		t.Errorf("column: got %v (%v)", col, err)
	}
	if _, err := traj.Column("fan.V"); !errors.Is(err, dynamo.ErrUnknownPath) {
		t.Errorf("expected ErrUnknownPath, got %v", err)
	}

	r.Reset()
	if r.Trajectory().Len() != 0 {
		t.Error("reset should start an empty trajectory")
	}
	if traj.Len() != 3 {
		t.Error("reset must not touch a trajectory already handed out")
	}
}

func TestFromRowsChecksWidth(t *testing.T) {
	_, err := FromRows([]string{"a", "b"}, []Row{{Index: 0, Values: []float64{1}}})
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}
