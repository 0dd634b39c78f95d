package viz

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/models"
	"github.com/san-kum/cosim/internal/recorder"
)

type sink struct {
	msgs []tea.Msg
}

func (s *sink) Send(msg tea.Msg) { s.msgs = append(s.msgs, msg) }

type fixed map[string]float64

func (f fixed) Paths() []string       { return nil }
func (f fixed) Suggest(string) string { return "" }
func (f fixed) Value(p string) (float64, error) {
	v, ok := f[p]
	if !ok {
		return 0, dynamo.ErrUnknownPath
	}
	return v, nil
}

func TestPlotTrajectory(t *testing.T) {
	traj, err := recorder.FromRows([]string{"T", "flat"}, []recorder.Row{
		{Index: 0, Time: 0, Values: []float64{80, 1}},
		{Index: 1, Time: 1, Values: []float64{50, 1}},
		{Index: 2, Time: 2, Values: []float64{35, 1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := PlotTrajectory(traj, DefaultPlotOptions())
	if err != nil {
		t.Fatalf("plot failed: %v", err)
	}
	for _, want := range []string{"T  (t = 0 .. 2)", "flat"} {
		if !strings.Contains(out, want) {
			t.Errorf("plot missing %q:\n%s", want, out)
		}
	}

	if _, err := PlotTrajectory(traj, PlotOptions{Width: 40, Height: 5, Columns: []string{"nope"}}); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestPlotSingleSample(t *testing.T) {
	traj, _ := recorder.FromRows([]string{"x"}, []recorder.Row{{Values: []float64{2.5}}})
	out, err := PlotTrajectory(traj, DefaultPlotOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "x: 2.5") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestDescribe(t *testing.T) {
	asm, err := models.NewCPUSteady().Build()
	if err != nil {
		t.Fatal(err)
	}
	out := Describe(asm)
	for _, want := range []string{"cpu_steady", "evaluation order", "unknowns", "T_cpu.T", "cpu.Q_out == hsink.Q_out"} {
		if !strings.Contains(out, want) {
			t.Errorf("description missing %q:\n%s", want, out)
		}
	}
}

func TestFeedForwardsSteps(t *testing.T) {
	s := &sink{}
	f, err := NewFeed(s, fixed{"T": 42}, []string{"T"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.OnStep(dynamo.StepInfo{Step: 3, Time: 0.3, Progress: 0.5, Failed: true})

	if len(s.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(s.msgs))
	}
	msg := s.msgs[0].(StepMsg)
	if msg.Step != 3 || !msg.Failed || msg.Values[0] != 42 {
		t.Errorf("unexpected message %+v", msg)
	}

	if _, err := NewFeed(s, fixed{}, []string{"T"}, 0); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestFeedThrottlesButSendsLastStep(t *testing.T) {
	s := &sink{}
	f, _ := NewFeed(s, fixed{"T": 1}, []string{"T"}, 1)
	for i := 1; i <= 5; i++ {
		f.OnStep(dynamo.StepInfo{Step: i, Progress: float64(i) / 5})
	}
	if len(s.msgs) != 2 {
		t.Fatalf("got %d messages, want first and last", len(s.msgs))
	}
	if last := s.msgs[1].(StepMsg); last.Step != 5 {
		t.Errorf("last message is step %d, want 5", last.Step)
	}
}

func TestLiveModelUpdate(t *testing.T) {
	var m tea.Model = NewLiveModel("decay", []string{"T", "dT"})
	for i := 0; i < 3; i++ {
		m, _ = m.Update(StepMsg{Step: i + 1, Progress: float64(i+1) / 3, Values: []float64{80 - float64(i), -1}})
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	lm := m.(LiveModel)
	if lm.selected != 1 || len(lm.history[0]) != 3 {
		t.Errorf("unexpected model state: selected %d, history %v", lm.selected, lm.history)
	}

	m, _ = m.Update(DoneMsg{Steps: 3, Metrics: map[string]float64{"stability": 1}})
	view := m.View()
	for _, want := range []string{"DECAY", "DONE", "> dT", "stability"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m, _ = m.Update(DoneMsg{Err: errors.New("solver gave up")})
	if !strings.Contains(m.View(), "solver gave up") {
		t.Error("view should show the failure")
	}

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}); cmd == nil {
		t.Error("q should quit")
	}
}

func TestLiveModelFreeze(t *testing.T) {
	var m tea.Model = NewLiveModel("decay", []string{"T"})
	m, _ = m.Update(StepMsg{Step: 1, Values: []float64{1}})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeySpace})
	frozen := m.View()
	m, _ = m.Update(StepMsg{Step: 2, Values: []float64{2}})
	if m.View() != frozen {
		t.Error("frozen view changed")
	}
	if !strings.Contains(frozen, "FROZEN") {
		t.Error("frozen view should say so")
	}
}
