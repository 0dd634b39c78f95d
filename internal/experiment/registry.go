package experiment

import (
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/integrators"
	"github.com/san-kum/cosim/internal/metrics"
	"github.com/san-kum/cosim/internal/models"
)

// Registry resolves the names used in run files. Lookups can be replaced
// so tests and embedders can plug in their own models.
type Registry struct {
	models      func(name string) (models.Model, error)
	integrators func(name string) (integrators.Integrator, error)
	metrics     func(name string) (dynamo.Metric, error)
	modelNames  func() []string
}

func NewRegistry() *Registry {
	return &Registry{
		models:      models.Get,
		integrators: integrators.New,
		metrics:     metrics.New,
		modelNames:  models.Names,
	}
}

// WithModel registers an extra model under name, shadowing a built-in one.
func (r *Registry) WithModel(name string, fn func() models.Model) *Registry {
	next, names := r.models, r.modelNames
	r.models = func(n string) (models.Model, error) {
		if n == name {
			return fn(), nil
		}
		return next(n)
	}
	r.modelNames = func() []string {
		out := names()
		for _, n := range out {
			if n == name {
				return out
			}
		}
		return append(out, name)
	}
	return r
}

func (r *Registry) GetModel(name string) (models.Model, error) { return r.models(name) }

func (r *Registry) GetIntegrator(name string) (integrators.Integrator, error) {
	return r.integrators(name)
}

func (r *Registry) GetMetric(name string) (dynamo.Metric, error) { return r.metrics(name) }

func (r *Registry) ListModels() []string { return r.modelNames() }

func (r *Registry) ListIntegrators() []string { return integrators.Names() }

func (r *Registry) ListMetrics() []string { return metrics.Names() }

// DefaultMetrics is attached to transient runs that name none.
func (r *Registry) DefaultMetrics() []dynamo.Metric {
	return []dynamo.Metric{
		metrics.NewSolverEffort(),
		metrics.NewStability(),
		metrics.NewRejections(),
	}
}
