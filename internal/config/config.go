package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/sim"
	"github.com/san-kum/cosim/internal/telemetry"
	"gopkg.in/yaml.v3"
)

const (
	DefaultIntegrator = "rk4"
	DefaultModel      = "cpu_steady"
)

// Config describes one run: which model, how to solve it and what to keep.
type Config struct {
	Model      string                 `yaml:"model" validate:"required"`
	Mode       dynamo.Mode            `yaml:"mode,omitempty" validate:"omitempty,oneof=steady transient"`
	Integrator string                 `yaml:"integrator" validate:"oneof=euler midpoint heun rk3 rk4"`
	Params     map[string]float64     `yaml:"params,omitempty"`
	Init       map[string]float64     `yaml:"init,omitempty"`
	Record     []string               `yaml:"record,omitempty"`
	Metrics    []string               `yaml:"metrics,omitempty" validate:"dive,oneof=solver_effort stability peak_residual rejections"`
	Solver     dynamo.SolverConfig    `yaml:"solver"`
	Transient  dynamo.TransientConfig `yaml:"transient"`
	Schedule   []ScheduleEntry        `yaml:"schedule,omitempty" validate:"dive"`
	Optimize   *OptimizeConfig        `yaml:"optimize,omitempty"`
	Log        telemetry.LogConfig    `yaml:"log"`
}

// ScheduleEntry is either a constant Value or a Times/Values table.
type ScheduleEntry struct {
	Path   string    `yaml:"path" validate:"required"`
	Value  *float64  `yaml:"value,omitempty" validate:"required_without=Times"`
	Times  []float64 `yaml:"times,omitempty" validate:"required_without=Value"`
	Values []float64 `yaml:"values,omitempty"`
	Interp string    `yaml:"interp,omitempty" validate:"omitempty,oneof=step linear"`
}

type OptimizeConfig struct {
	Method    string    `yaml:"method" validate:"oneof=descent grid"`
	Vars      []string  `yaml:"vars" validate:"min=1,dive,required"`
	Objective string    `yaml:"objective" validate:"required"`
	Lower     []float64 `yaml:"lower,omitempty"`
	Upper     []float64 `yaml:"upper,omitempty"`
	MaxIter   int       `yaml:"max_iter" validate:"gte=0"`
	Step      float64   `yaml:"step" validate:"gte=0"`
	Tol       float64   `yaml:"tol" validate:"gte=0"`
	Points    int       `yaml:"points" validate:"gte=0"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:      DefaultModel,
		Integrator: DefaultIntegrator,
		Solver:     dynamo.DefaultSolverConfig(),
		Transient:  dynamo.DefaultTransientConfig(),
		Log:        telemetry.DefaultLogConfig(),
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var validate = validator.New()

// Validate checks field constraints and the shape of schedule tables and
// optimisation bounds.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.BuildSchedule(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if o := c.Optimize; o != nil {
		if len(o.Lower) > 0 && len(o.Lower) != len(o.Vars) {
			return fmt.Errorf("invalid config: %d lower bounds for %d vars", len(o.Lower), len(o.Vars))
		}
		if len(o.Upper) > 0 && len(o.Upper) != len(o.Vars) {
			return fmt.Errorf("invalid config: %d upper bounds for %d vars", len(o.Upper), len(o.Vars))
		}
		if o.Method == "grid" && (len(o.Lower) == 0 || len(o.Upper) == 0) {
			return fmt.Errorf("invalid config: grid search needs lower and upper bounds")
		}
	}
	return nil
}

// BuildSchedule turns the schedule entries into a driver schedule, or nil
// when there are none.
func (c *Config) BuildSchedule() (sim.Schedule, error) {
	if len(c.Schedule) == 0 {
		return nil, nil
	}
	var out sim.Schedules
	constants := sim.Constant{}
	for _, e := range c.Schedule {
		if e.Value != nil {
			constants[e.Path] = *e.Value
			continue
		}
		tb := &sim.Table{Path: e.Path, Times: e.Times, Points: e.Values, Interp: sim.Interp(e.Interp)}
		if err := tb.Validate(); err != nil {
			return nil, err
		}
		out = append(out, tb)
	}
	if len(constants) > 0 {
		out = append(sim.Schedules{constants}, out...)
	}
	return out, nil
}

// Clone returns a deep copy, so presets can be edited safely.
func (c *Config) Clone() *Config {
	out := *c
	out.Params = cloneMap(c.Params)
	out.Init = cloneMap(c.Init)
	out.Record = append([]string(nil), c.Record...)
	out.Metrics = append([]string(nil), c.Metrics...)
	if c.Schedule != nil {
		out.Schedule = make([]ScheduleEntry, len(c.Schedule))
		for i, e := range c.Schedule {
			out.Schedule[i] = ScheduleEntry{
				Path:   e.Path,
				Times:  append([]float64(nil), e.Times...),
				Values: append([]float64(nil), e.Values...),
				Interp: e.Interp,
			}
			if e.Value != nil {
				out.Schedule[i].Value = value(*e.Value)
			}
		}
	}
	if c.Optimize != nil {
		o := *c.Optimize
		o.Vars = append([]string(nil), o.Vars...)
		o.Lower = append([]float64(nil), o.Lower...)
		o.Upper = append([]float64(nil), o.Upper...)
		out.Optimize = &o
	}
	return &out
}

func cloneMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Overrides merges Params and Init; Init wins on shared paths.
func (c *Config) Overrides() map[string]float64 {
	out := make(map[string]float64, len(c.Params)+len(c.Init))
	for k, v := range c.Params {
		out[k] = v
	}
	for k, v := range c.Init {
		out[k] = v
	}
	return out
}
