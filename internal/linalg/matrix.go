package linalg

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/beamline/internal/dynamo"
)

// PhaseMatrix is a 7x7 homogeneous transfer or covariance matrix.
type PhaseMatrix [Dim][Dim]float64

// Identity returns the identity map.
func Identity() PhaseMatrix {
	var m PhaseMatrix
	for i := 0; i < Dim; i++ {
		m[i][i] = 1.0
	}
	return m
}

// Translation returns the homogeneous map z -> z + v.
func Translation(v PhaseVector) PhaseMatrix {
	m := Identity()
	for i := 0; i < HOM; i++ {
		m[i][HOM] = v[i]
	}
	return m
}

// SetBlock writes a 2x2 block at (row, col).
func (m *PhaseMatrix) SetBlock(row, col int, b [2][2]float64) {
	m[row][col] = b[0][0]
	m[row][col+1] = b[0][1]
	m[row+1][col] = b[1][0]
	m[row+1][col+1] = b[1][1]
}

// Block returns the 2x2 block at (row, col).
func (m PhaseMatrix) Block(row, col int) [2][2]float64 {
	return [2][2]float64{
		{m[row][col], m[row][col+1]},
		{m[row+1][col], m[row+1][col+1]},
	}
}

// Times returns m*b.
func (m PhaseMatrix) Times(b PhaseMatrix) PhaseMatrix {
	var r PhaseMatrix
	for i := 0; i < Dim; i++ {
		for k := 0; k < Dim; k++ {
			a := m[i][k]
			if a == 0 {
				continue
			}
			for j := 0; j < Dim; j++ {
				r[i][j] += a * b[k][j]
			}
		}
	}
	return r
}

// Compose returns a∘b: the map that applies b first, then a.
func Compose(a, b PhaseMatrix) PhaseMatrix {
	return a.Times(b)
}

func (m PhaseMatrix) TimesVector(v PhaseVector) PhaseVector {
	var r PhaseVector
	for i := 0; i < Dim; i++ {
		sum := 0.0
		for j := 0; j < Dim; j++ {
			sum += m[i][j] * v[j]
		}
		r[i] = sum
	}
	return r
}

func (m PhaseMatrix) Plus(b PhaseMatrix) PhaseMatrix {
	var r PhaseMatrix
	for i := range m {
		for j := range m[i] {
			r[i][j] = m[i][j] + b[i][j]
		}
	}
	return r
}

func (m PhaseMatrix) Scale(f float64) PhaseMatrix {
	var r PhaseMatrix
	for i := range m {
		for j := range m[i] {
			r[i][j] = m[i][j] * f
		}
	}
	return r
}

func (m PhaseMatrix) Transpose() PhaseMatrix {
	var r PhaseMatrix
	for i := range m {
		for j := range m[i] {
			r[j][i] = m[i][j]
		}
	}
	return r
}

// ConjugateTrans returns phi*m*phi^T, the propagation of a covariance matrix.
func (m PhaseMatrix) ConjugateTrans(phi PhaseMatrix) PhaseMatrix {
	return phi.Times(m).Times(phi.Transpose())
}

func (m PhaseMatrix) dense() *mat.Dense {
	data := make([]float64, 0, Dim*Dim)
	for i := range m {
		data = append(data, m[i][:]...)
	}
	return mat.NewDense(Dim, Dim, data)
}

func fromDense(d mat.Matrix) PhaseMatrix {
	var m PhaseMatrix
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			m[i][j] = d.At(i, j)
		}
	}
	return m
}

// Inverse returns m^-1. Singular or ill-conditioned matrices yield
// dynamo.ErrSingularMatrix.
func (m PhaseMatrix) Inverse() (PhaseMatrix, error) {
	if !m.IsFinite() {
		return PhaseMatrix{}, dynamo.ErrNonFiniteMap
	}
	var inv mat.Dense
	if err := inv.Inverse(m.dense()); err != nil {
		return PhaseMatrix{}, fmt.Errorf("%w: %v", dynamo.ErrSingularMatrix, err)
	}
	r := fromDense(&inv)
	if !r.IsFinite() {
		return PhaseMatrix{}, dynamo.ErrSingularMatrix
	}
	return r, nil
}

func (m PhaseMatrix) Det() float64 {
	return mat.Det(m.dense())
}

// PlaneDet returns the determinant of the 2x2 diagonal block of a plane (X, Y or Z).
func (m PhaseMatrix) PlaneDet(plane int) float64 {
	b := m.Block(plane, plane)
	return b[0][0]*b[1][1] - b[0][1]*b[1][0]
}

func (m PhaseMatrix) IsFinite() bool {
	for i := range m {
		for _, x := range m[i] {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}

// ApproxEqual reports whether every entry differs by at most tol.
func (m PhaseMatrix) ApproxEqual(b PhaseMatrix, tol float64) bool {
	for i := range m {
		for j := range m[i] {
			if math.Abs(m[i][j]-b[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// String encodes the matrix row-major as "[[a, b, ...], [...], ...]".
func (m PhaseMatrix) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := range m {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('[')
		for j := range m[i] {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.FormatFloat(m[i][j], 'g', -1, 64))
		}
		sb.WriteByte(']')
	}
	sb.WriteByte(']')
	return sb.String()
}

// ParsePhaseMatrix decodes the String encoding. A 6x6 matrix is embedded
// into homogeneous form with a unit corner.
func ParsePhaseMatrix(s string) (PhaseMatrix, error) {
	body := strings.TrimSpace(s)
	body = strings.TrimPrefix(body, "[")
	body = strings.TrimSuffix(body, "]")

	var rows [][]float64
	for _, chunk := range strings.Split(body, "]") {
		chunk = strings.Trim(chunk, " \t\n,;[")
		if chunk == "" {
			continue
		}
		vals, err := parseNumbers(chunk)
		if err != nil {
			return PhaseMatrix{}, err
		}
		rows = append(rows, vals)
	}

	n := len(rows)
	if n != HOM && n != Dim {
		return PhaseMatrix{}, fmt.Errorf("phase matrix: expected 6 or 7 rows, got %d", n)
	}
	var m PhaseMatrix
	for i, row := range rows {
		if len(row) != n {
			return PhaseMatrix{}, fmt.Errorf("phase matrix: row %d has %d columns, want %d", i, len(row), n)
		}
		copy(m[i][:], row)
	}
	if n == HOM {
		m[HOM][HOM] = 1.0
	}
	return m, nil
}
