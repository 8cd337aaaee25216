package linalg

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/beamline/internal/dynamo"
)

// Polynomial is a real polynomial with coefficients in ascending order.
type Polynomial []float64

// Evaluate returns p(x) by Horner's rule.
func (p Polynomial) Evaluate(x float64) float64 {
	sum := 0.0
	for i := len(p) - 1; i >= 0; i-- {
		sum = sum*x + p[i]
	}
	return sum
}

func (p Polynomial) Derivative() Polynomial {
	if len(p) <= 1 {
		return Polynomial{0}
	}
	d := make(Polynomial, len(p)-1)
	for i := 1; i < len(p); i++ {
		d[i-1] = float64(i) * p[i]
	}
	return d
}

func (p Polynomial) EvaluateDerivative(x float64) float64 {
	return p.Derivative().Evaluate(x)
}

func (p Polynomial) Degree() int {
	return len(p) - 1
}

func (p Polynomial) String() string {
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = strconv.FormatFloat(c, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// ParsePolynomial reads comma or whitespace separated coefficients.
func ParsePolynomial(s string) (Polynomial, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty coefficient list", dynamo.ErrMalformedFit)
	}
	vals, err := parseNumbers(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrMalformedFit, err)
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite coefficient", dynamo.ErrMalformedFit)
		}
	}
	return Polynomial(vals), nil
}
