package system

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/san-kum/cosim/internal/dynamo"
)

func TestPulledAliasIsNeverStale(t *testing.T) {
	b := NewBuilder("sys")
	b.Root().Child("a").Inward("x", "", Value(1)).Outward("y", "").Compute(doubler("x", "y")).Pull("x", "y")
	asm, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if err := asm.SetValue("x", 5); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got := asm.MustValue("a.x"); got != 5 {
		t.Errorf("a.x after writing x: got %v, want 5", got)
	}
	if err := asm.SetValue("a.x", 7); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got := asm.MustValue("x"); got != 7 {
		t.Errorf("x after writing a.x: got %v, want 7", got)
	}

	if err := asm.Pass(t.Context()); err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if got, child := asm.MustValue("y"), asm.MustValue("a.y"); got != 14 || child != 14 {
		t.Errorf("y = %v, a.y = %v, want 14", got, child)
	}
}

func TestEvaluationOrderFollowsDependencies(t *testing.T) {
	b := NewBuilder("sys")
	r := b.Root()
	r.Child("last").Inward("x", "").Outward("y", "").Compute(doubler("x", "y"))
	r.Child("middle").Inward("x", "").Outward("y", "").Compute(doubler("x", "y"))
	r.Child("first").Inward("x", "", Value(1)).Outward("y", "").Compute(doubler("x", "y"))
	r.Connect("first.y", "middle.x")
	r.Connect("middle.y", "last.x")

	asm, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	want := []string{"first", "middle", "last"}
	if got := asm.Order(); !reflect.DeepEqual(got, want) {
		t.Errorf("order: got %v, want %v", got, want)
	}
	if len(asm.Feedback()) != 0 {
		t.Errorf("expected no feedback edges, got %v", asm.Feedback())
	}

	before := asm.Passes()
	if err := asm.Evaluate(t.Context()); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if asm.Passes()-before != 1 {
		t.Errorf("acyclic evaluation should take one pass, took %d", asm.Passes()-before)
	}
	if got := asm.MustValue("last.y"); got != 8 {
		t.Errorf("last.y: got %v, want 8", got)
	}
}

func buildLoop(t *testing.T) *Assembly {
	t.Helper()
	b := NewBuilder("loop")
	r := b.Root()
	r.Child("a").Inward("x", "").Outward("y", "").Compute(func(v *Vars) error {
		v.Set("y", 0.5*v.Get("x")+1)
		return nil
	})
	r.Child("b").Inward("x", "").Outward("y", "").Compute(func(v *Vars) error {
		v.Set("y", v.Get("x"))
		return nil
	})
	r.Connect("a.y", "b.x")
	r.Connect("b.y", "a.x")

	asm, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return asm
}

func TestFeedbackLoopSettles(t *testing.T) {
	asm := buildLoop(t)

	want := []Edge{{From: "b", To: "a"}}
	if got := asm.Feedback(); !reflect.DeepEqual(got, want) {
		t.Fatalf("feedback: got %v, want %v", got, want)
	}
	if err := asm.Evaluate(t.Context()); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if got := asm.MustValue("a.y"); math.Abs(got-2) > 1e-9 {
		t.Errorf("a.y: got %v, want 2", got)
	}
}

func TestFeedbackFixedPointIsIdempotent(t *testing.T) {
	asm := buildLoop(t)
	if err := asm.Evaluate(t.Context()); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	settled := map[string]float64{}
	for _, p := range asm.Paths() {
		settled[p] = asm.MustValue(p)
	}

	before := asm.Passes()
	for i := 0; i < 3; i++ {
		if err := asm.Evaluate(t.Context()); err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
	}
	if asm.Passes()-before != 3 {
		t.Errorf("settled loop should need one pass per evaluation, took %d", asm.Passes()-before)
	}
	for p, v := range settled {
		if got := asm.MustValue(p); math.Abs(got-v) > 1e-9 {
			t.Errorf("%s moved from %v to %v", p, v, got)
		}
	}
}

func TestFeedbackLoopThatDiverges(t *testing.T) {
	b := NewBuilder("loop")
	r := b.Root()
	r.Child("a").Inward("x", "").Outward("y", "").Compute(func(v *Vars) error {
		v.Set("y", v.Get("x")+1)
		return nil
	})
	r.Connect("a.y", "a.x")
	asm, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	asm.SetFeedbackLimits(0, 10)
	if err := asm.Evaluate(t.Context()); !errors.Is(err, dynamo.ErrFeedbackUnsettled) {
		t.Errorf("expected ErrFeedbackUnsettled, got %v", err)
	}
}

func TestComputeErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   ComputeFunc
		want error
	}{
		{"returned error", func(v *Vars) error { return errors.New("flow too small") }, nil},
		{"not a number", func(v *Vars) error { v.Set("y", math.NaN()); return nil }, dynamo.ErrInvalidState},
		{"writes its input", func(v *Vars) error { v.Set("x", 1); return nil }, dynamo.ErrDriven},
		{"reads a stranger", func(v *Vars) error { v.Set("y", v.Get("z")); return nil }, dynamo.ErrUnknownPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("sys")
			b.Root().Child("c").Inward("x", "", Value(1)).Outward("y", "").Compute(tt.fn)
			asm, err := b.Build()
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			err = asm.Evaluate(t.Context())
			var ee *dynamo.EvaluationError
			if !errors.As(err, &ee) {
				t.Fatalf("expected EvaluationError, got %v", err)
			}
			if ee.Component != "c" {
				t.Errorf("component: got %q, want c", ee.Component)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSetValueRejectsDrivenVariables(t *testing.T) {
	b := NewBuilder("sys")
	r := b.Root()
	r.Child("a").Inward("x", "", Value(1)).Outward("y", "").Compute(doubler("x", "y"))
	r.Child("b").Inward("x", "").Outward("y", "").Compute(doubler("x", "y"))
	r.Connect("a.y", "b.x")
	asm, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	for _, p := range []string{"a.y", "b.x"} {
		if err := asm.SetValue(p, 3); !errors.Is(err, dynamo.ErrDriven) {
			t.Errorf("%s: expected ErrDriven, got %v", p, err)
		}
	}
	if err := asm.SetValue("b.z", 3); !errors.Is(err, dynamo.ErrUnknownPath) {
		t.Errorf("expected ErrUnknownPath, got %v", err)
	}
}

func TestResidualsAndUnknowns(t *testing.T) {
	b := NewBuilder("sys")
	r := b.Root()
	c := r.Child("c").Inward("x", "", Value(1)).Outward("y", "").Compute(doubler("x", "y"))
	c.Unknown("x", Lower(0)).Equation("y == 6")

	asm, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	us := asm.Unknowns()
	if len(us) != 1 || us[0].Path != "c.x" || us[0].Lower != 0 || us[0].Init != 1 {
		t.Fatalf("unexpected unknowns: %+v", us)
	}
	if err := asm.SetUnknownValues([]float64{2}); err != nil {
		t.Fatalf("set unknowns failed: %v", err)
	}
	if err := asm.Evaluate(t.Context()); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	res, err := asm.Residuals(nil)
	if err != nil {
		t.Fatalf("residuals failed: %v", err)
	}
	if len(res) != 1 || res[0] != -2 {
		t.Errorf("residuals: got %v, want [-2]", res)
	}
	if got := asm.Equations(); !reflect.DeepEqual(got, []string{"c: y == 6"}) {
		t.Errorf("equations: got %v", got)
	}
}

func TestStates(t *testing.T) {
	b := NewBuilder("sys")
	r := b.Root()
	r.Inward("T", "K", Value(300)).Inward("k", "1/s", Value(0.5))
	r.Outward("dT", "K/s").Compute(func(v *Vars) error {
		v.Set("dT", -v.Get("k")*v.Get("T"))
		return nil
	})
	r.Transient("T", "dT")

	asm, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if v, _ := asm.Lookup("T"); v.Role() != RoleState {
		t.Errorf("T role: got %v, want state", v.Role())
	}
	if err := asm.SetStateValues(dynamo.State{100}); err != nil {
		t.Fatalf("set states failed: %v", err)
	}
	if err := asm.Evaluate(t.Context()); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if d := asm.Derivatives(nil); len(d) != 1 || d[0] != -50 {
		t.Errorf("derivatives: got %v, want [-50]", d)
	}
	if st := asm.States(); st[0].Init != 300 {
		t.Errorf("declared state: got %v, want 300", st[0].Init)
	}
	asm.ResetStates()
	if got := asm.MustValue("T"); got != 300 {
		t.Errorf("after reset: got %v, want 300", got)
	}
}

func TestSetValueKeepsDeclaredGuess(t *testing.T) {
	b := NewBuilder("sys")
	c := b.Root().Child("c").Inward("x", "", Value(1)).Outward("y", "").Compute(doubler("x", "y"))
	c.Unknown("x").Equation("y == 6")
	asm, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if err := asm.SetValue("c.x", 9); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got := asm.MustValue("c.x"); got != 9 {
		t.Errorf("value: got %v, want 9", got)
	}
	if got := asm.InitialUnknowns(nil); len(got) != 1 || got[0] != 1 {
		t.Errorf("initial guesses: got %v, want [1]", got)
	}
	if i, ok := asm.UnknownIndex("c.x"); !ok || i != 0 {
		t.Errorf("unknown index: got %d, %v", i, ok)
	}
	if _, ok := asm.UnknownIndex("c.y"); ok {
		t.Error("c.y is not an unknown")
	}
}
