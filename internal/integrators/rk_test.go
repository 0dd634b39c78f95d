package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/cosim/internal/dynamo"
)

func oscillator(t float64, x, dx dynamo.State) error {
	dx[0] = x[1]
	dx[1] = -x[0]
	return nil
}

func decay(k, amb float64) Derivative {
	return func(t float64, x, dx dynamo.State) error {
		dx[0] = -k * (x[0] - amb)
		return nil
	}
}

func integrate(integ Integrator, f Derivative, x dynamo.State, t1, dt float64) (dynamo.State, error) {
	steps := int(math.Round(t1 / dt))
	for i := 0; i < steps; i++ {
		var err error
		if x, err = integ.Step(f, float64(i)*dt, x, dt); err != nil {
			return nil, err
		}
	}
	return x, nil
}

func TestRK4Accuracy(t *testing.T) {
	x, err := integrate(NewRK4(), oscillator, dynamo.State{1, 0}, 1, 0.01)
	if err != nil {
		t.Fatalf("integration failed: %v", err)
	}
	if math.Abs(x[0]-math.Cos(1)) > 1e-8 {
		t.Errorf("position: got %.10f, want %.10f", x[0], math.Cos(1))
	}
	if math.Abs(x[1]+math.Sin(1)) > 1e-8 {
		t.Errorf("velocity: got %.10f, want %.10f", x[1], -math.Sin(1))
	}
}

func TestConvergenceOrder(t *testing.T) {
	const k, amb, x0, t1 = 1.0, 20.0, 80.0, 1.0
	exact := amb + (x0-amb)*math.Exp(-k*t1)

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			var errs [2]float64
			for i, dt := range []float64{0.1, 0.05} {
				integ, err := New(name)
				if err != nil {
					t.Fatal(err)
				}
				x, err := integrate(integ, decay(k, amb), dynamo.State{x0}, t1, dt)
				if err != nil {
					t.Fatalf("integration failed: %v", err)
				}
				errs[i] = math.Abs(x[0] - exact)
			}
			integ, _ := New(name)
			want := math.Pow(2, float64(integ.Order()))
			ratio := errs[0] / errs[1]
			if ratio < 0.8*want || ratio > 1.2*want {
				t.Errorf("error ratio on halving dt: got %.2f, want about %.0f (errors %g, %g)", ratio, want, errs[0], errs[1])
			}
		})
	}
}

func TestZeroDerivativeKeepsState(t *testing.T) {
	still := func(t float64, x, dx dynamo.State) error {
		for i := range dx {
			dx[i] = 0
		}
		return nil
	}
	for _, name := range Names() {
		integ, _ := New(name)
		x, err := integrate(integ, still, dynamo.State{3.5, -2}, 10, 0.3)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if x[0] != 3.5 || x[1] != -2 {
			t.Errorf("%s: got %v, want [3.5 -2]", name, x)
		}
	}
}

func TestStageTimes(t *testing.T) {
	var times []float64
	record := func(t float64, x, dx dynamo.State) error {
		times = append(times, t)
		dx[0] = 1
		return nil
	}
	if _, err := NewRK4().Step(record, 2, dynamo.State{0}, 0.5); err != nil {
		t.Fatal(err)
	}
	want := []float64{2, 2.25, 2.25, 2.5}
	if len(times) != len(want) {
		t.Fatalf("stage count: got %d, want %d", len(times), len(want))
	}
	for i := range want {
		if times[i] != want[i] {
			t.Errorf("stage %d time: got %v, want %v", i, times[i], want[i])
		}
	}
}

func TestStageErrorStopsStep(t *testing.T) {
	calls := 0
	fail := func(t float64, x, dx dynamo.State) error {
		calls++
		if calls == 2 {
			return dynamo.ErrNotConverged
		}
		return nil
	}
	x := dynamo.State{1}
	_, err := NewRK4().Step(fail, 0, x, 0.1)
	if !errors.Is(err, dynamo.ErrNotConverged) {
		t.Errorf("expected ErrNotConverged, got %v", err)
	}
	if calls != 2 {
		t.Errorf("stages run after failure: got %d calls, want 2", calls)
	}
	if x[0] != 1 {
		t.Errorf("input state modified: got %v", x)
	}
}

func TestUnknownIntegrator(t *testing.T) {
	if _, err := New("verlet"); err == nil {
		t.Error("expected error for unknown integrator")
	}
}
