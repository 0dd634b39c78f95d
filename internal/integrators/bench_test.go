package integrators

import (
	"testing"

	"github.com/san-kum/cosim/internal/dynamo"
)

func benchmarkStep(b *testing.B, integ Integrator, f Derivative, x dynamo.State) {
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x, _ = integ.Step(f, 0, x, 0.01)
	}
}

func BenchmarkEuler(b *testing.B) {
	benchmarkStep(b, NewEuler(), oscillator, dynamo.State{1, 0})
}

func BenchmarkRK4(b *testing.B) {
	benchmarkStep(b, NewRK4(), oscillator, dynamo.State{1, 0})
}

func BenchmarkRK4Chain(b *testing.B) {
	chain := func(t float64, x, dx dynamo.State) error {
		dx[0] = -x[0]
		for i := 1; i < len(x); i++ {
			dx[i] = x[i-1] - x[i]
		}
		return nil
	}
	benchmarkStep(b, NewRK4(), chain, make(dynamo.State, 20))
}
