package models

import (
	"fmt"
	"sort"
)

var registry = map[string]func() Model{
	"cpu_steady":    func() Model { return NewCPUSteady() },
	"cpu_transient": func() Model { return NewCPUTransient() },
	"pipe_network":  func() Model { return NewPipeNetwork() },
	"rastrigin":     func() Model { return NewRastrigin() },
	"decay":         func() Model { return NewExponentialDecay() },
	"vanderpol":     func() Model { return NewVanDerPol() },
}

func Get(name string) (Model, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
