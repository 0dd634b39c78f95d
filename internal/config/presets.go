package config

import "github.com/san-kum/cosim/internal/dynamo"

func preset(model string, edit func(c *Config)) *Config {
	c := DefaultConfig()
	c.Model = model
	edit(c)
	return c
}

func value(v float64) *float64 { return &v }

var Presets = map[string]map[string]*Config{
	"cpu_steady": {
		"nominal": preset("cpu_steady", func(c *Config) {
			c.Params = map[string]float64{"use": 1, "max_power": 20, "T_amb": 20}
		}),
		"hot_start": preset("cpu_steady", func(c *Config) {
			c.Init = map[string]float64{"T_cpu.T": 35}
		}),
		"idle": preset("cpu_steady", func(c *Config) {
			c.Params = map[string]float64{"use": 0.2}
		}),
	},
	"cpu_transient": {
		"warmup": preset("cpu_transient", func(c *Config) {
			c.Mode = dynamo.ModeTransient
			c.Transient.T1, c.Transient.Dt = 150, 0.05
			c.Init = map[string]float64{"T_cpu": 20, "hsink.T_metal": 20}
			c.Schedule = []ScheduleEntry{{Path: "use", Value: value(1)}}
			c.Record = []string{"use", "T_cpu", "hsink.T_metal", "cpu.Q_out", "hsink.Q_out", "fan.V_fan"}
			c.Metrics = []string{"solver_effort", "stability"}
		}),
		"load_step": preset("cpu_transient", func(c *Config) {
			c.Mode = dynamo.ModeTransient
			c.Transient.T1, c.Transient.Dt = 120, 0.1
			c.Schedule = []ScheduleEntry{{Path: "use", Times: []float64{0, 30}, Values: []float64{0.2, 1}, Interp: "step"}}
		}),
	},
	"pipe_network": {
		"nominal": preset("pipe_network", func(c *Config) {}),
		"strong_pump": preset("pipe_network", func(c *Config) {
			c.Params = map[string]float64{"pump.power": 2000}
		}),
	},
	"rastrigin": {
		"descent": preset("rastrigin", func(c *Config) {
			c.Init = map[string]float64{"x": 0.4, "y": -0.3}
			c.Optimize = &OptimizeConfig{Method: "descent", Vars: []string{"x", "y"}, Objective: "f", MaxIter: 100}
		}),
		"grid": preset("rastrigin", func(c *Config) {
			c.Optimize = &OptimizeConfig{
				Method: "grid", Vars: []string{"x", "y"}, Objective: "f",
				Lower: []float64{-1.5, -1.5}, Upper: []float64{1.5, 1.5}, Points: 31,
			}
		}),
	},
	"vanderpol": {
		"limit_cycle": preset("vanderpol", func(c *Config) {
			c.Mode = dynamo.ModeTransient
			c.Transient.T1, c.Transient.Dt = 40, 0.01
		}),
		"stiff": preset("vanderpol", func(c *Config) {
			c.Mode = dynamo.ModeTransient
			c.Transient.T1, c.Transient.Dt = 60, 0.005
			c.Params = map[string]float64{"mu": 5}
		}),
	},
	"decay": {
		"default": preset("decay", func(c *Config) {
			c.Mode = dynamo.ModeTransient
			c.Transient.T1, c.Transient.Dt = 5, 0.1
		}),
		"fast": preset("decay", func(c *Config) {
			c.Mode = dynamo.ModeTransient
			c.Transient.T1, c.Transient.Dt = 2, 0.05
			c.Params = map[string]float64{"k": 5}
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	return names
}
