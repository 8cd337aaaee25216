package linalg

import "math"

// CovarianceMatrix is the homogeneous second-moment matrix <z z^T> of an
// ensemble. The last row and column hold the centroid.
type CovarianceMatrix struct {
	PhaseMatrix
}

// NewCovariance builds the covariance of a beam with the given Twiss
// parameters centred on mean. Planes are uncorrelated.
func NewCovariance(t Twiss3D, mean PhaseVector) CovarianceMatrix {
	var central PhaseMatrix
	for p := 0; p < 3; p++ {
		central.SetBlock(2*p, 2*p, t[p].Block())
	}
	return CovarianceFromCentral(central, mean)
}

// CovarianceFromCentral adds the centroid moments to a central covariance.
func CovarianceFromCentral(central PhaseMatrix, mean PhaseVector) CovarianceMatrix {
	var m PhaseMatrix
	for i := 0; i < HOM; i++ {
		for j := 0; j < HOM; j++ {
			m[i][j] = central[i][j] + mean[i]*mean[j]
		}
		m[i][HOM] = mean[i]
		m[HOM][i] = mean[i]
	}
	m[HOM][HOM] = 1.0
	return CovarianceMatrix{m}
}

func (c CovarianceMatrix) Mean() PhaseVector {
	var v PhaseVector
	for i := 0; i < HOM; i++ {
		v[i] = c.PhaseMatrix[i][HOM]
	}
	v[HOM] = 1.0
	return v
}

// Central returns the central moment <(z_i - m_i)(z_j - m_j)>.
func (c CovarianceMatrix) Central(i, j int) float64 {
	return c.PhaseMatrix[i][j] - c.PhaseMatrix[i][HOM]*c.PhaseMatrix[j][HOM]
}

func (c CovarianceMatrix) CentralXX() float64 { return c.Central(X, X) }
func (c CovarianceMatrix) CentralYY() float64 { return c.Central(Y, Y) }
func (c CovarianceMatrix) CentralZZ() float64 { return c.Central(Z, Z) }
func (c CovarianceMatrix) CentralXY() float64 { return c.Central(X, Y) }
func (c CovarianceMatrix) CentralXZ() float64 { return c.Central(X, Z) }
func (c CovarianceMatrix) CentralYZ() float64 { return c.Central(Y, Z) }

// Twiss returns the per-plane Twiss parameters of the central moments.
func (c CovarianceMatrix) Twiss() Twiss3D {
	var t Twiss3D
	for p := 0; p < 3; p++ {
		i := 2 * p
		t[p] = TwissFromMoments(c.Central(i, i), c.Central(i, i+1), c.Central(i+1, i+1))
	}
	return t
}

// RMSEnvelopes returns the rms sizes in x, y and z.
func (c CovarianceMatrix) RMSEnvelopes() [3]float64 {
	return [3]float64{
		math.Sqrt(math.Max(c.CentralXX(), 0)),
		math.Sqrt(math.Max(c.CentralYY(), 0)),
		math.Sqrt(math.Max(c.CentralZZ(), 0)),
	}
}

// Propagate returns phi*sigma*phi^T.
func (c CovarianceMatrix) Propagate(phi PhaseMatrix) CovarianceMatrix {
	return CovarianceMatrix{c.ConjugateTrans(phi)}
}

// IsSymmetric reports whether the matrix is symmetric within tol.
func (c CovarianceMatrix) IsSymmetric(tol float64) bool {
	return c.ApproxEqual(c.Transpose(), tol)
}
