package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/recorder"
)

const historyCapacity = 600

// StepMsg carries one accepted step into the live view.
type StepMsg struct {
	Step       int
	Time       float64
	Progress   float64
	Iterations int
	Retries    int
	Failed     bool
	Values     []float64
}

// DoneMsg ends a live run.
type DoneMsg struct {
	Steps    int
	Rejected int
	Metrics  map[string]float64
	Err      error
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Feed observes a transient run and forwards the watched columns to a
// Sender, at most once per frame. The last step is always sent.
type Feed struct {
	sender    Sender
	src       recorder.Source
	columns   []string
	frame     time.Duration
	lastFrame time.Time
}

// NewFeed checks every column against src. fps <= 0 sends every step.
func NewFeed(sender Sender, src recorder.Source, columns []string, fps int) (*Feed, error) {
	for _, c := range columns {
		if _, err := src.Value(c); err != nil {
			return nil, err
		}
	}
	f := &Feed{sender: sender, src: src, columns: columns}
	if fps > 0 {
		f.frame = time.Second / time.Duration(fps)
	}
	return f, nil
}

func (f *Feed) OnStep(info dynamo.StepInfo) {
	if info.Progress < 1 && f.frame > 0 && time.Since(f.lastFrame) < f.frame {
		return
	}
	f.lastFrame = time.Now()

	values := make([]float64, len(f.columns))
	for i, c := range f.columns {
		values[i], _ = f.src.Value(c)
	}
	f.sender.Send(StepMsg{
		Step:       info.Step,
		Time:       info.Time,
		Progress:   info.Progress,
		Iterations: info.Solve.Iterations,
		Retries:    info.Retries,
		Failed:     info.Failed,
		Values:     values,
	})
}

// LiveModel is the Bubble Tea model of the live view.
type LiveModel struct {
	title    string
	columns  []string
	history  [][]float64
	selected int
	frozen   bool
	snapshot string
	last     StepMsg
	failures int
	done     *DoneMsg
	width    int
}

func NewLiveModel(title string, columns []string) LiveModel {
	return LiveModel{
		title:   title,
		columns: columns,
		history: make([][]float64, len(columns)),
		width:   80,
	}
}

func (m LiveModel) Init() tea.Cmd { return nil }

func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			if len(m.columns) > 0 {
				m.selected = (m.selected + 1) % len(m.columns)
			}
		case " ", "space":
			m.frozen = !m.frozen
			if m.frozen {
				m.snapshot = m.render()
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case StepMsg:
		m.last = msg
		if msg.Failed {
			m.failures++
		}
		for i, v := range msg.Values {
			if i >= len(m.history) {
				break
			}
			h := append(m.history[i], v)
			if len(h) > historyCapacity {
				h = h[len(h)-historyCapacity:]
			}
			m.history[i] = h
		}
	case DoneMsg:
		m.done = &msg
	}
	return m, nil
}

func (m LiveModel) View() string {
	if m.frozen {
		return m.snapshot + "\n" + StatusPaused.Render("FROZEN") + "\n"
	}
	return m.render()
}

func (m LiveModel) render() string {
	var s strings.Builder
	s.WriteString(HeaderStyle.Render(strings.ToUpper(m.title)) + "\n")

	switch {
	case m.done != nil && m.done.Err != nil:
		s.WriteString(StatusFailed.Render("FAILED: "+m.done.Err.Error()) + "\n\n")
	case m.done != nil:
		s.WriteString(StatusRunning.Render("DONE") + "\n\n")
	default:
		s.WriteString(StatusRunning.Render("RUNNING") + "\n\n")
	}

	barWidth := max(min(m.width-20, 50), 10)
	s.WriteString(ProgressBar(m.last.Progress, barWidth) + fmt.Sprintf(" %5.1f%%\n\n", 100*m.last.Progress))

	if len(m.columns) > 0 {
		data := m.history[m.selected]
		if len(data) > 1 {
			chart := asciigraph.Plot(data,
				asciigraph.Height(8),
				asciigraph.Width(max(min(m.width-12, 70), 20)),
				asciigraph.Caption(m.columns[m.selected]),
			)
			s.WriteString(graphStyle.Render(chart) + "\n")
		}
	}

	s.WriteString(MetricLabel.Render("time") + MetricValue.Render(fmt.Sprintf("%.4g", m.last.Time)) + "\n")
	s.WriteString(MetricLabel.Render("step") + MetricValue.Render(fmt.Sprintf("%d", m.last.Step)) + "\n")
	s.WriteString(MetricLabel.Render("newton iterations") + MetricValue.Render(fmt.Sprintf("%d", m.last.Iterations)) + "\n")
	if m.failures > 0 {
		s.WriteString(MetricLabel.Render("failed steps") + StatusFailed.Render(fmt.Sprintf("%d", m.failures)) + "\n")
	}
	s.WriteString(Separator(40) + "\n")
	for i, c := range m.columns {
		v := "-"
		if i < len(m.last.Values) {
			v = fmt.Sprintf("%.6g", m.last.Values[i])
		}
		label := c
		if i == m.selected {
			label = "> " + c
		}
		s.WriteString(MetricLabel.Render(label) + MetricValue.Render(v) + " " + Sparkline(m.history[i], 20) + "\n")
	}

	if m.done != nil {
		s.WriteString("\n" + MetricLabel.Render("steps") + MetricValue.Render(fmt.Sprintf("%d", m.done.Steps)) + "\n")
		s.WriteString(MetricLabel.Render("rejected") + MetricValue.Render(fmt.Sprintf("%d", m.done.Rejected)) + "\n")
		names := make([]string, 0, len(m.done.Metrics))
		for k := range m.done.Metrics {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			s.WriteString(MetricLabel.Render(k) + MetricValue.Render(fmt.Sprintf("%.6g", m.done.Metrics[k])) + "\n")
		}
	}

	s.WriteString("\n" + KeyHint.Render("tab: next column  space: freeze  q: quit") + "\n")
	return s.String()
}
