package optim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/models"
	"github.com/san-kum/cosim/internal/solver"
)

func rastrigin(t *testing.T) (Objective, *solver.Steady) {
	t.Helper()
	asm, err := models.NewRastrigin().Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	steady := solver.NewSteady(asm, dynamo.DefaultSolverConfig())
	obj, err := AssemblyObjective(steady, []string{"x", "y"}, "f")
	if err != nil {
		t.Fatalf("objective failed: %v", err)
	}
	return obj, steady
}

func TestAssemblyObjective(t *testing.T) {
	obj, steady := rastrigin(t)
	got, err := obj(t.Context(), []float64{0.5, -0.25})
	if err != nil {
		t.Fatal(err)
	}
	if want := models.RastriginValue(0.5, -0.25); math.Abs(got-want) > 1e-12 {
		t.Errorf("got %v, want %v", got, want)
	}
	if x := steady.Assembly().MustValue("x"); x != 0.5 {
		t.Errorf("assembly x: got %v, want 0.5", x)
	}
	if _, err := obj(t.Context(), []float64{1}); err == nil {
		t.Error("expected error for wrong dimension")
	}
}

func TestAssemblyObjectiveRejectsPaths(t *testing.T) {
	_, steady := rastrigin(t)
	tests := []struct {
		name   string
		vars   []string
		output string
	}{
		{"computed var", []string{"f"}, "f"},
		{"missing var", []string{"z"}, "f"},
		{"missing output", []string{"x"}, "g"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := AssemblyObjective(steady, tt.vars, tt.output); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDescentFindsRastriginMinimum(t *testing.T) {
	obj, steady := rastrigin(t)
	res, err := NewDescent().Minimize(t.Context(), obj, []float64{0.4, -0.3}, []string{"x", "y"}, "f")
	if err != nil {
		t.Fatalf("descent failed: %v", err)
	}
	if !res.Converged {
		t.Fatalf("not converged after %d iterations", res.Iterations)
	}
	if res.Value > 1e-9 || math.Abs(res.X[0]) > 1e-6 || math.Abs(res.X[1]) > 1e-6 {
		t.Errorf("got f%v = %v, want f(0, 0) = 0", res.X, res.Value)
	}
	if res.Trace.Len() != res.Iterations+1 {
		t.Errorf("trace rows: got %d, want %d", res.Trace.Len(), res.Iterations+1)
	}
	if got := steady.Assembly().MustValue("x"); got != res.X[0] {
		t.Errorf("assembly left at x=%v, want %v", got, res.X[0])
	}
	p := res.Params([]string{"x", "y"})
	if p["x"] != res.X[0] || p["y"] != res.X[1] {
		t.Errorf("params: got %v", p)
	}
}

func TestDescentRespectsBounds(t *testing.T) {
	obj, _ := rastrigin(t)
	d := NewDescent()
	d.Lower = []float64{0.3, -1}
	d.Upper = []float64{1, 1}
	res, err := d.Minimize(t.Context(), obj, []float64{0.4, -0.3}, []string{"x", "y"}, "f")
	if err != nil {
		t.Fatalf("descent failed: %v", err)
	}
	if !res.Converged {
		t.Fatal("not converged")
	}
	if res.X[0] != 0.3 || math.Abs(res.X[1]) > 1e-6 {
		t.Errorf("got %v, want [0.3 0]", res.X)
	}
}

func TestDescentStopsOnObjectiveError(t *testing.T) {
	boom := errors.New("boom")
	obj := func(context.Context, []float64) (float64, error) { return 0, boom }
	if _, err := NewDescent().Minimize(t.Context(), obj, []float64{1}, []string{"x"}, "f"); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestDescentMaxIter(t *testing.T) {
	obj, _ := rastrigin(t)
	d := NewDescent()
	d.MaxIter = 2
	res, err := d.Minimize(t.Context(), obj, []float64{0.4, -0.3}, []string{"x", "y"}, "f")
	if err != nil {
		t.Fatal(err)
	}
	if res.Converged || res.Iterations != 2 {
		t.Errorf("got converged=%v after %d iterations", res.Converged, res.Iterations)
	}
}

func TestGridSearch(t *testing.T) {
	obj, _ := rastrigin(t)
	g := NewGridSearch([]string{"x", "y"}, [][]float64{Linspace(-1.5, 1.5, 31), Linspace(-1.5, 1.5, 31)})
	res, err := g.Search(t.Context(), obj, "f")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if res.Evaluations != 31*31 {
		t.Errorf("evaluations: got %d, want %d", res.Evaluations, 31*31)
	}
	if math.Abs(res.X[0]) > 1e-9 || math.Abs(res.X[1]) > 1e-9 || res.Value > 1e-9 {
		t.Errorf("got f%v = %v, want the origin", res.X, res.Value)
	}
	last, _ := res.Trace.Last()
	if last.Values[2] != res.Value {
		t.Errorf("trace should end at the best point: %v", last.Values)
	}
}

func TestGridSearchSkipsFailures(t *testing.T) {
	obj := func(_ context.Context, x []float64) (float64, error) {
		if x[0] < 0 {
			return 0, errors.New("undefined")
		}
		return x[0], nil
	}
	res, err := NewGridSearch([]string{"x"}, [][]float64{{-2, -1, 3, 2}}).Search(t.Context(), obj, "f")
	if err != nil {
		t.Fatal(err)
	}
	if res.X[0] != 2 {
		t.Errorf("got %v, want 2", res.X[0])
	}

	if _, err := NewGridSearch([]string{"x"}, [][]float64{{-1}}).Search(t.Context(), obj, "f"); err == nil {
		t.Error("expected error when no point evaluates")
	}
}

func TestGridSearchCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	obj := func(context.Context, []float64) (float64, error) { return 0, nil }
	if _, err := NewGridSearch([]string{"x"}, [][]float64{{1, 2}}).Search(ctx, obj, "f"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLinspace(t *testing.T) {
	got := Linspace(0, 1, 5)
	want := []float64{0, 0.25, 0.5, 0.75, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if got := Linspace(3, 9, 1); len(got) != 1 || got[0] != 3 {
		t.Errorf("single point: got %v", got)
	}
}
