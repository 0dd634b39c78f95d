package metrics

import (
	"fmt"
	"sort"

	"github.com/san-kum/cosim/internal/dynamo"
)

var registry = map[string]func() dynamo.Metric{
	"solver_effort": func() dynamo.Metric { return NewSolverEffort() },
	"stability":     func() dynamo.Metric { return NewStability() },
	"peak_residual": func() dynamo.Metric { return NewPeakResidual() },
	"rejections":    func() dynamo.Metric { return NewRejections() },
}

func New(name string) (dynamo.Metric, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric: %s", name)
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
