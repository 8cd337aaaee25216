package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/beamline/internal/linalg"
)

// PlaneStability is the periodic solution of one plane of a cell map.
type PlaneStability struct {
	Trace        float64
	Stable       bool
	PhaseAdvance float64 // rad per period
	Alpha        float64
	Beta         float64 // m
}

// PeriodicSolution returns the matched Twiss alpha and beta and the phase
// advance of each plane of the one-period map m. Unstable planes report
// only their trace.
func PeriodicSolution(m linalg.PhaseMatrix) [3]PlaneStability {
	var out [3]PlaneStability
	for p := range out {
		b := m.Block(2*p, 2*p)
		tr := b[0][0] + b[1][1]
		out[p].Trace = tr

		cosMu := tr / 2
		if math.Abs(cosMu) >= 1 {
			continue
		}
		sinMu := math.Sqrt(1 - cosMu*cosMu)
		if b[0][1] < 0 {
			sinMu = -sinMu
		}
		mu := math.Atan2(sinMu, cosMu)
		if mu < 0 {
			mu += 2 * math.Pi
		}
		out[p] = PlaneStability{
			Trace:        tr,
			Stable:       true,
			PhaseAdvance: mu,
			Alpha:        (b[0][0] - b[1][1]) / (2 * sinMu),
			Beta:         b[0][1] / sinMu,
		}
	}
	return out
}

// GrowthRate returns the largest eigenvalue modulus of the linear part
// of m. Stable symplectic maps give 1; values above 1 mean amplitudes
// grow by that factor per application.
func GrowthRate(m linalg.PhaseMatrix) float64 {
	data := make([]float64, 0, linalg.HOM*linalg.HOM)
	for i := 0; i < linalg.HOM; i++ {
		data = append(data, m[i][:linalg.HOM]...)
	}

	var eig mat.Eigen
	if !eig.Factorize(mat.NewDense(linalg.HOM, linalg.HOM, data), mat.EigenNone) {
		return math.NaN()
	}
	rate := 0.0
	for _, v := range eig.Values(nil) {
		rate = math.Max(rate, cmplx.Abs(v))
	}
	return rate
}
