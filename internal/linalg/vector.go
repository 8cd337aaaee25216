package linalg

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Phase-space indices.
const (
	X = iota
	XP
	Y
	YP
	Z
	ZP
	HOM
)

// Dim is the homogeneous phase-space dimension.
const Dim = 7

// PhaseVector holds one particle's phase coordinates with a trailing homogeneous 1.
type PhaseVector [Dim]float64

func NewPhaseVector(x, xp, y, yp, z, zp float64) PhaseVector {
	return PhaseVector{x, xp, y, yp, z, zp, 1.0}
}

// ZeroVector returns the reference-orbit vector (all zeros, homogeneous 1).
func ZeroVector() PhaseVector {
	return PhaseVector{HOM: 1.0}
}

func (v PhaseVector) Plus(w PhaseVector) PhaseVector {
	var r PhaseVector
	for i := 0; i < HOM; i++ {
		r[i] = v[i] + w[i]
	}
	r[HOM] = 1.0
	return r
}

func (v PhaseVector) Minus(w PhaseVector) PhaseVector {
	var r PhaseVector
	for i := 0; i < HOM; i++ {
		r[i] = v[i] - w[i]
	}
	r[HOM] = 1.0
	return r
}

func (v PhaseVector) Scale(f float64) PhaseVector {
	var r PhaseVector
	for i := 0; i < HOM; i++ {
		r[i] = v[i] * f
	}
	r[HOM] = 1.0
	return r
}

// Negate returns -v in the phase coordinates.
func (v PhaseVector) Negate() PhaseVector {
	return v.Scale(-1)
}

// Norm2 returns the Euclidean norm of the six phase coordinates.
func (v PhaseVector) Norm2() float64 {
	sum := 0.0
	for i := 0; i < HOM; i++ {
		sum += v[i] * v[i]
	}
	return math.Sqrt(sum)
}

func (v PhaseVector) IsFinite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Slice returns the six phase coordinates.
func (v PhaseVector) Slice() []float64 {
	out := make([]float64, HOM)
	copy(out, v[:HOM])
	return out
}

// String encodes the vector as "(x, x', y, y', z, z')".
func (v PhaseVector) String() string {
	parts := make([]string, HOM)
	for i := 0; i < HOM; i++ {
		parts[i] = strconv.FormatFloat(v[i], 'g', -1, 64)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ParsePhaseVector decodes the String encoding. Six or seven components are
// accepted, separated by commas or whitespace, optionally wrapped in () or [].
func ParsePhaseVector(s string) (PhaseVector, error) {
	vals, err := parseNumbers(s)
	if err != nil {
		return PhaseVector{}, err
	}
	if len(vals) != HOM && len(vals) != Dim {
		return PhaseVector{}, fmt.Errorf("phase vector: expected 6 or 7 components, got %d", len(vals))
	}
	var v PhaseVector
	copy(v[:], vals)
	v[HOM] = 1.0
	return v, nil
}

func parseNumbers(s string) ([]float64, error) {
	s = strings.Trim(strings.TrimSpace(s), "()[]{}")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == ';'
	})
	vals := make([]float64, 0, len(fields))
	for _, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", f, err)
		}
		vals = append(vals, x)
	}
	return vals, nil
}
