package metrics

import (
	"math"

	"github.com/san-kum/cosim/internal/dynamo"
)

// PeakResidual is the largest residual left by any accepted solve.
type PeakResidual struct {
	name string
	peak float64
}

func NewPeakResidual() *PeakResidual {
	return &PeakResidual{name: "peak_residual"}
}

func (p *PeakResidual) Name() string { return p.name }

func (p *PeakResidual) Observe(info dynamo.StepInfo) {
	p.peak = math.Max(p.peak, info.Solve.MaxResidual)
}

func (p *PeakResidual) Value() float64 { return p.peak }
func (p *PeakResidual) Reset()         { p.peak = 0 }

// Rejections counts step retries caused by failed nested solves.
type Rejections struct {
	name  string
	count int
}

func NewRejections() *Rejections {
	return &Rejections{name: "rejections"}
}

func (r *Rejections) Name() string                 { return r.name }
func (r *Rejections) Observe(info dynamo.StepInfo) { r.count += info.Retries }
func (r *Rejections) Value() float64               { return float64(r.count) }
func (r *Rejections) Reset()                       { r.count = 0 }
