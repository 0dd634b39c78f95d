// Package automation runs batches of experiments: scripted scenarios,
// parameter sweeps and randomised trials.
package automation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/experiment"
	"github.com/san-kum/cosim/internal/recorder"
	"github.com/san-kum/cosim/internal/storage"
	"gopkg.in/yaml.v3"
)

// Scenario defines a scripted sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset (or the defaults) and edits it.
type ScenarioStep struct {
	Model      string             `yaml:"model"`
	Preset     string             `yaml:"preset"`
	Integrator string             `yaml:"integrator"`
	Duration   float64            `yaml:"duration"`
	Dt         float64            `yaml:"dt"`
	Params     map[string]float64 `yaml:"params"`
	Init       map[string]float64 `yaml:"init"`
	Record     []string           `yaml:"record"`
	SaveAs     string             `yaml:"save_as"`
}

type StepResult struct {
	Step    int
	RunID   string
	Outcome *experiment.Outcome
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	return &scenario, nil
}

// Config resolves the step into a full run configuration.
func (s ScenarioStep) Config() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if s.Preset != "" {
		if cfg = config.GetPreset(s.Model, s.Preset); cfg == nil {
			return nil, fmt.Errorf("unknown preset %s for model %s", s.Preset, s.Model)
		}
	}
	cfg.Model = s.Model
	if s.Integrator != "" {
		cfg.Integrator = s.Integrator
	}
	if s.Duration > 0 {
		cfg.Transient.T1 = cfg.Transient.T0 + s.Duration
	}
	if s.Dt > 0 {
		cfg.Transient.Dt = s.Dt
	}
	cfg.Params = merge(cfg.Params, s.Params)
	cfg.Init = merge(cfg.Init, s.Init)
	if len(s.Record) > 0 {
		cfg.Record = s.Record
	}
	return cfg, nil
}

func merge(base, extra map[string]float64) map[string]float64 {
	if len(extra) == 0 {
		return base
	}
	if base == nil {
		base = make(map[string]float64, len(extra))
	}
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// RunScenario executes every step in order. Steps with SaveAs are written to
// store when it is not nil.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, store *storage.Store) ([]StepResult, error) {
	log := zerolog.Ctx(ctx)
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		log.Info().Str("scenario", scenario.Name).Int("step", i+1).Int("of", len(scenario.Steps)).Str("model", step.Model).Msg("running step")

		cfg, err := step.Config()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		exp, err := experiment.New(cfg, registry)
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		out, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		res := StepResult{Step: i + 1, Outcome: out}
		if step.SaveAs != "" && store != nil {
			meta := out.Metadata(cfg)
			meta.ID = step.SaveAs
			if res.RunID, err = store.Save(meta, cfg, out.Trajectory); err != nil {
				return results, fmt.Errorf("step %d save: %w", i+1, err)
			}
		}
		results = append(results, res)
	}

	return results, nil
}

// ParameterSweep reruns a configuration across evenly spaced values of one
// parameter.
type ParameterSweep struct {
	Base      *config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
	// Outputs are read from the last recorded row of every run.
	Outputs []string
}

type SweepResult struct {
	ParamValue float64
	Converged  bool
	Iterations int
	Outputs    map[string]float64
	Err        error
}

// RunSweep keeps going when a point fails to converge; the failure is kept
// on its SweepResult. Other errors stop the sweep.
func RunSweep(ctx context.Context, sweep *ParameterSweep, registry *experiment.Registry) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step")
	}
	log := zerolog.Ctx(ctx)
	results := make([]SweepResult, 0, sweep.NumSteps)

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}

	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.ParamMin + float64(i)*paramStep
		cfg := sweep.Base.Clone()
		cfg.Params = merge(cfg.Params, map[string]float64{sweep.ParamName: paramVal})
		if len(sweep.Outputs) > 0 {
			cfg.Record = sweep.Outputs
		}

		exp, err := experiment.New(cfg, registry)
		if err != nil {
			return nil, err
		}
		out, err := exp.Run(ctx)
		if out == nil {
			return nil, err
		}

		res := SweepResult{ParamValue: paramVal, Converged: err == nil && out.Converged(), Err: err, Outputs: lastRow(out.Trajectory)}
		if out.Steady != nil {
			res.Iterations = out.Steady.Iterations
		} else if out.Transient != nil {
			res.Iterations = out.Transient.Iterations
		}
		if err != nil && !isConvergence(err) {
			return results, err
		}
		results = append(results, res)

		log.Debug().Int("point", i+1).Int("of", sweep.NumSteps).Str("param", sweep.ParamName).Float64("value", paramVal).Bool("converged", res.Converged).Msg("sweep")
	}

	return results, nil
}

func lastRow(traj *recorder.Trajectory) map[string]float64 {
	if traj == nil || traj.Len() == 0 {
		return map[string]float64{}
	}
	row := traj.Row(traj.Len() - 1)
	delete(row, recorder.TimeColumn)
	return row
}

// SweepTrajectory lays sweep results out as a trajectory with the swept
// value in the time column, ready for plotting or export.
func SweepTrajectory(results []SweepResult, outputs []string) (*recorder.Trajectory, error) {
	rows := make([]recorder.Row, 0, len(results))
	for i, r := range results {
		values := make([]float64, len(outputs))
		for j, o := range outputs {
			v, ok := r.Outputs[o]
			if !ok {
				v = math.NaN()
			}
			values[j] = v
		}
		rows = append(rows, recorder.Row{Index: i, Time: r.ParamValue, Values: values})
	}
	return recorder.FromRows(outputs, rows)
}

// MonteCarloConfig perturbs parameters uniformly by up to Perturbation
// (relative) around the base configuration.
type MonteCarloConfig struct {
	Base         *config.Config
	Params       []string
	Perturbation float64
	NumTrials    int
	Seed         int64
}

type MonteCarloResult struct {
	TrialID   int
	Params    map[string]float64
	Converged bool
	Final     map[string]float64
}

func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, registry *experiment.Registry) ([]MonteCarloResult, error) {
	log := zerolog.Ctx(ctx)
	results := make([]MonteCarloResult, 0, cfg.NumTrials)

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	// Nominal values come from the built model, so unset params still work.
	nominal := make(map[string]float64, len(cfg.Params))
	probe, err := experiment.New(cfg.Base, registry)
	if err != nil {
		return nil, err
	}
	for _, p := range cfg.Params {
		v, ok := cfg.Base.Params[p]
		if !ok {
			if v, err = probe.Assembly().Value(p); err != nil {
				return nil, err
			}
		}
		nominal[p] = v
	}

	for trial := 0; trial < cfg.NumTrials; trial++ {
		run := cfg.Base.Clone()
		params := make(map[string]float64, len(cfg.Params))
		for _, p := range cfg.Params {
			params[p] = nominal[p] * (1 + (rng.Float64()-0.5)*2*cfg.Perturbation)
		}
		run.Params = merge(run.Params, params)

		exp, err := experiment.New(run, registry)
		if err != nil {
			return nil, err
		}
		out, err := exp.Run(ctx)
		if err != nil && !isConvergence(err) {
			return nil, err
		}

		results = append(results, MonteCarloResult{
			TrialID:   trial,
			Params:    params,
			Converged: err == nil && out.Converged(),
			Final:     lastRow(out.Trajectory),
		})

		if (trial+1)%10 == 0 {
			log.Info().Int("done", trial+1).Int("of", cfg.NumTrials).Msg("monte carlo")
		}
	}

	return results, nil
}

func MonteCarloStats(results []MonteCarloResult) (converged int, failed int) {
	for _, r := range results {
		if r.Converged {
			converged++
		} else {
			failed++
		}
	}
	return
}
