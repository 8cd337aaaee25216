package analysis

import (
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"

	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/probe"
)

// Resample interpolates f over the trajectory onto n points evenly spaced
// in position. It returns the samples and their spacing.
func Resample(states []probe.State, f func(probe.State) float64, n int) ([]float64, float64) {
	if len(states) < 2 || n < 2 {
		return nil, 0
	}
	s0, s1 := states[0].Position(), states[len(states)-1].Position()
	if s1 <= s0 {
		return nil, 0
	}
	ds := (s1 - s0) / float64(n-1)

	out := make([]float64, n)
	for i := range out {
		s := s0 + float64(i)*ds
		j := sort.Search(len(states), func(k int) bool { return states[k].Position() >= s })
		switch {
		case j == 0:
			out[i] = f(states[0])
		case j >= len(states):
			out[i] = f(states[len(states)-1])
		default:
			a, b := states[j-1], states[j]
			span := b.Position() - a.Position()
			if span == 0 {
				out[i] = f(b)
				continue
			}
			t := (s - a.Position()) / span
			out[i] = f(a) + t*(f(b)-f(a))
		}
	}
	return out, ds
}

// PowerSpectrum returns the magnitudes of the non-negative frequency bins
// of data.
func PowerSpectrum(data []float64) []float64 {
	spectrum := fft.FFTReal(data)
	ps := make([]float64, len(spectrum)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(spectrum[i])
	}
	return ps
}

// Spectrum is the spatial spectrum of a sampled quantity.
type Spectrum struct {
	Power   []float64
	Samples int
	Spacing float64 // m between samples
}

// Wavenumber returns the spatial frequency of bin i in 1/m.
func (s Spectrum) Wavenumber(i int) float64 {
	if s.Samples == 0 || s.Spacing == 0 {
		return 0
	}
	return float64(i) / (float64(s.Samples) * s.Spacing)
}

// Peak returns the strongest non-DC bin, or -1 if there is none.
func (s Spectrum) Peak() int {
	best := -1
	for i := 1; i < len(s.Power); i++ {
		if best < 0 || s.Power[i] > s.Power[best] {
			best = i
		}
	}
	return best
}

// OrbitSpectrum resamples coordinate idx of a particle trajectory onto n
// points and transforms it. The peak wavenumber of a betatron orbit is
// the inverse of its oscillation wavelength.
func OrbitSpectrum(states []probe.State, idx, n int) Spectrum {
	coord := func(st probe.State) float64 {
		switch s := st.(type) {
		case *probe.ParticleState:
			return s.Coords[idx]
		case *probe.TransferMapState:
			return s.Coords[idx]
		}
		return 0
	}
	if idx < 0 || idx >= linalg.HOM {
		return Spectrum{}
	}
	samples, ds := Resample(states, coord, n)
	if samples == nil {
		return Spectrum{}
	}
	return Spectrum{Power: PowerSpectrum(samples), Samples: n, Spacing: ds}
}
