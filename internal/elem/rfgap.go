package elem

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/linalg"
)

const TypeRfGap = "RfGap"

// TTFFits holds the transit-time-factor polynomials of a gap as functions of beta.
type TTFFits struct {
	T      linalg.Polynomial
	TPrime linalg.Polynomial
	S      linalg.Polynomial
	SPrime linalg.Polynomial
}

func (f TTFFits) empty() bool {
	return len(f.T) == 0 && len(f.TPrime) == 0 && len(f.S) == 0 && len(f.SPrime) == 0
}

func evalOr(p linalg.Polynomial, x, def float64) float64 {
	if len(p) == 0 {
		return def
	}
	return p.Evaluate(x)
}

// RfGap is a thin accelerating gap. The energy gain and focusing scale
// with the transit-time factors evaluated at the entrance beta. First and
// last gaps of a multi-gap cavity use their own end-cell fits when given.
type RfGap struct {
	Base

	e0         float64 // on-axis field (V/m)
	cellLength float64 // m
	phase      float64 // synchronous phase (rad)
	frequency  float64 // Hz
	amplitude  float64 // cavity amplitude scale

	fits      TTFFits
	startFits TTFFits
	endFits   TTFFits

	firstGap bool
	lastGap  bool
}

func NewRfGap(id string, e0, cellLength, phase, frequency float64) *RfGap {
	return &RfGap{
		Base:       newBase(TypeRfGap, id, 0),
		e0:         e0,
		cellLength: cellLength,
		phase:      phase,
		frequency:  frequency,
		amplitude:  1.0,
		fits:       TTFFits{T: linalg.Polynomial{1}},
	}
}

func (g *RfGap) Kind() Kind { return KindRfGap }

func (g *RfGap) E0() float64         { return g.e0 }
func (g *RfGap) CellLength() float64 { return g.cellLength }
func (g *RfGap) Phase() float64      { return g.phase }
func (g *RfGap) Frequency() float64  { return g.frequency }
func (g *RfGap) Amplitude() float64  { return g.amplitude }
func (g *RfGap) IsFirstGap() bool    { return g.firstGap }
func (g *RfGap) IsLastGap() bool     { return g.lastGap }

// ETL returns the effective gap voltage E0*T*L at beta, in volts.
func (g *RfGap) ETL(beta float64) float64 {
	return g.amplitude * g.e0 * g.cellLength * g.TransitTimeFactor(beta)
}

// SetFits installs the body-cell fits.
func (g *RfGap) SetFits(f TTFFits) { g.fits = f }

// SetEndFits installs the start- and end-cell fits.
func (g *RfGap) SetEndFits(start, end TTFFits) {
	g.startFits = start
	g.endFits = end
}

// SetCellPosition marks the gap as first and/or last of its cavity.
func (g *RfGap) SetCellPosition(first, last bool) {
	g.firstGap = first
	g.lastGap = last
}

func (g *RfGap) activeFits() TTFFits {
	switch {
	case g.firstGap && !g.startFits.empty():
		return g.startFits
	case g.lastGap && !g.endFits.empty():
		return g.endFits
	default:
		return g.fits
	}
}

// TransitTimeFactor returns T(beta) from the active fit.
func (g *RfGap) TransitTimeFactor(beta float64) float64 {
	return evalOr(g.activeFits().T, beta, 1)
}

func (g *RfGap) transitTerms(beta float64) (t, tp, s, sp float64) {
	f := g.activeFits()
	return evalOr(f.T, beta, 1), evalOr(f.TPrime, beta, 0), evalOr(f.S, beta, 0), evalOr(f.SPrime, beta, 0)
}

// EnergyGain returns |Q| E0 L (T cos(phi) - S sin(phi)).
func (g *RfGap) EnergyGain(k dynamo.Kinematics, _ float64) float64 {
	t, _, s, _ := g.transitTerms(k.Beta())
	sin, cos := math.Sincos(g.phase)
	return math.Abs(k.Charge) * g.amplitude * g.e0 * g.cellLength * (t*cos - s*sin)
}

// PhaseSlip returns the longitudinal phase shift across the gap (rad).
func (g *RfGap) PhaseSlip(k dynamo.Kinematics) float64 {
	b, gm := k.Beta(), k.Gamma()
	_, tp, _, sp := g.transitTerms(b)
	sin, cos := math.Sincos(g.phase)
	el := math.Abs(k.Charge) * g.amplitude * g.e0 * g.cellLength
	return -math.Pi * el / (b * b * gm * gm * gm * k.RestEnergy) * (sin*tp + cos*sp)
}

func (g *RfGap) ElapsedTime(k dynamo.Kinematics, _ float64) float64 {
	if g.frequency == 0 {
		return 0
	}
	return g.PhaseSlip(k) / (2 * math.Pi * g.frequency)
}

// exit returns the kinematics after the gap.
func (g *RfGap) exit(k dynamo.Kinematics) dynamo.Kinematics {
	out := k
	out.KineticEnergy += g.EnergyGain(k, 0)
	return out
}

// BetaFinal returns beta after the energy gain.
func (g *RfGap) BetaFinal(k dynamo.Kinematics) float64 { return g.exit(k).Beta() }

// GammaFinal returns gamma after the energy gain.
func (g *RfGap) GammaFinal(k dynamo.Kinematics) float64 { return g.exit(k).Gamma() }

// TransverseFocusing returns the thin-lens kick coefficient k_t (1/m).
func (g *RfGap) TransverseFocusing(k dynamo.Kinematics) float64 {
	mid := k
	mid.KineticEnergy += g.EnergyGain(k, 0) / 2
	bg := mid.BetaGamma()
	t := g.TransitTimeFactor(k.Beta())
	return math.Pi * math.Abs(k.Charge) * g.amplitude * g.e0 * t * g.cellLength * g.frequency *
		math.Sin(-g.phase) / (dynamo.LightSpeed * k.RestEnergy * bg * bg)
}

// LongitudinalFocusing returns k_z = -2 k_t gamma_mid^2.
func (g *RfGap) LongitudinalFocusing(k dynamo.Kinematics) float64 {
	mid := k
	mid.KineticEnergy += g.EnergyGain(k, 0) / 2
	gm := mid.Gamma()
	return -2 * g.TransverseFocusing(k) * gm * gm
}

func (g *RfGap) TransferMap(k dynamo.Kinematics, length float64) (linalg.PhaseMatrix, error) {
	if err := g.checkLength(length); err != nil {
		return linalg.PhaseMatrix{}, err
	}
	out := g.exit(k)
	if !(out.KineticEnergy > 0) {
		return linalg.PhaseMatrix{}, fmt.Errorf("%w: gap decelerates below zero energy", dynamo.ErrNonFiniteMap)
	}

	bgi, bgf := k.BetaGamma(), out.BetaGamma()
	kt := g.TransverseFocusing(k)
	kz := g.LongitudinalFocusing(k)

	tran := [2][2]float64{{1, 0}, {kt / bgf, bgi / bgf}}
	long := [2][2]float64{{1, 0}, {kz / bgf, bgi / bgf}}

	phi := linalg.Identity()
	phi.SetBlock(linalg.X, linalg.X, tran)
	phi.SetBlock(linalg.Y, linalg.Y, tran)
	phi.SetBlock(linalg.Z, linalg.Z, long)
	return finite(g.applyAlign(phi))
}

func (g *RfGap) GetParams() map[string]float64 {
	return g.baseParams(map[string]float64{
		"e0":          g.e0,
		"cell_length": g.cellLength,
		"phase":       g.phase,
		"frequency":   g.frequency,
		"amplitude":   g.amplitude,
	})
}

func (g *RfGap) SetParam(name string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s=%g", dynamo.ErrParameterBounds, name, value)
	}
	switch name {
	case "e0":
		g.e0 = value
	case "cell_length":
		if value < 0 {
			return fmt.Errorf("%w: cell_length=%g", dynamo.ErrParameterBounds, value)
		}
		g.cellLength = value
	case "phase":
		g.phase = value
	case "frequency":
		if value < 0 {
			return fmt.Errorf("%w: frequency=%g", dynamo.ErrParameterBounds, value)
		}
		g.frequency = value
	case "amplitude":
		g.amplitude = value
	case "length":
		// gaps are thin; the cell extent is drift space
	default:
		return g.setBaseParam(name, value)
	}
	return nil
}

// ConfigureFits parses named coefficient lists. Keys are "ttf", "ttfp",
// "stf", "stfp", optionally prefixed with "start_" or "end_".
func (g *RfGap) ConfigureFits(fits map[string]string) error {
	for key, coeffs := range fits {
		p, err := linalg.ParsePolynomial(coeffs)
		if err != nil {
			return fmt.Errorf("gap %s fit %s: %w", g.id, key, err)
		}
		target := &g.fits
		name := key
		switch {
		case strings.HasPrefix(key, "start_"):
			target, name = &g.startFits, strings.TrimPrefix(key, "start_")
		case strings.HasPrefix(key, "end_"):
			target, name = &g.endFits, strings.TrimPrefix(key, "end_")
		}
		switch name {
		case "ttf":
			target.T = p
		case "ttfp":
			target.TPrime = p
		case "stf":
			target.S = p
		case "stfp":
			target.SPrime = p
		default:
			return fmt.Errorf("%w: gap %s unknown fit %q", dynamo.ErrMalformedFit, g.id, key)
		}
	}
	return nil
}
