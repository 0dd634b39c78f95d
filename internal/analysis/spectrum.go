package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/san-kum/cosim/internal/recorder"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

type SpectrumResult struct {
	Freqs      []float64
	Amplitudes []float64
}

// Dominant is the frequency with the largest amplitude, ignoring DC.
func (s SpectrumResult) Dominant() (freq, amplitude float64) {
	for i := 1; i < len(s.Amplitudes); i++ {
		if s.Amplitudes[i] > amplitude {
			freq, amplitude = s.Freqs[i], s.Amplitudes[i]
		}
	}
	return freq, amplitude
}

// Spectrum transforms a column with its mean removed. Samples must be
// evenly spaced in time, which holds for fixed-step runs.
func Spectrum(traj *recorder.Trajectory, column string) (SpectrumResult, error) {
	data, err := traj.Column(column)
	if err != nil {
		return SpectrumResult{}, err
	}
	times := traj.Times()
	n := len(data)
	if n < 4 {
		return SpectrumResult{}, fmt.Errorf("column %s needs at least 4 samples, has %d", column, n)
	}

	dt := (times[n-1] - times[0]) / float64(n-1)
	for i := 1; i < n; i++ {
		if math.Abs(times[i]-times[i-1]-dt) > 1e-6*dt {
			return SpectrumResult{}, fmt.Errorf("samples are not evenly spaced near t=%g", times[i])
		}
	}

	mean := stat.Mean(data, nil)
	seq := make([]float64, n)
	for i, v := range data {
		seq[i] = v - mean
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, seq)
	res := SpectrumResult{
		Freqs:      make([]float64, len(coeff)),
		Amplitudes: make([]float64, len(coeff)),
	}
	for i, c := range coeff {
		res.Freqs[i] = fft.Freq(i) / dt
		res.Amplitudes[i] = 2 * cmplx.Abs(c) / float64(n)
	}
	return res, nil
}
