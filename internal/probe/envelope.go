package probe

import (
	"math"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/traj"
)

// EnvelopeProbe follows the second moments of a bunch. The response
// matrix accumulates the linear map from the start of the run.
type EnvelopeProbe struct {
	Base
	initCov   linalg.CovarianceMatrix
	cov       linalg.CovarianceMatrix
	response  linalg.PhaseMatrix
	current   float64 // A
	bunchFreq float64 // Hz
	traj      *traj.Trajectory[*EnvelopeState]
}

// NewEnvelope builds an envelope probe from Twiss parameters centred on
// the reference orbit.
func NewEnvelope(id string, sp Species, w float64, twiss linalg.Twiss3D, current, bunchFreq float64) (*EnvelopeProbe, error) {
	if err := twiss.Validate(); err != nil {
		return nil, err
	}
	return NewEnvelopeFromCovariance(id, sp, w, linalg.NewCovariance(twiss, linalg.ZeroVector()), current, bunchFreq), nil
}

func NewEnvelopeFromCovariance(id string, sp Species, w float64, cov linalg.CovarianceMatrix, current, bunchFreq float64) *EnvelopeProbe {
	return &EnvelopeProbe{
		Base:      newBase(id, sp, w),
		initCov:   cov,
		cov:       cov,
		response:  linalg.Identity(),
		current:   current,
		bunchFreq: bunchFreq,
		traj:      traj.New[*EnvelopeState](),
	}
}

func (p *EnvelopeProbe) Kind() Kind { return KindEnvelope }

func (p *EnvelopeProbe) Covariance() linalg.CovarianceMatrix { return p.cov }

func (p *EnvelopeProbe) SetCovariance(c linalg.CovarianceMatrix) { p.cov = c }

// SetInitialTwiss replaces the initial covariance with an uncorrelated
// beam of the given Twiss parameters.
func (p *EnvelopeProbe) SetInitialTwiss(t linalg.Twiss3D) error {
	if err := t.Validate(); err != nil {
		return err
	}
	p.initCov = linalg.NewCovariance(t, linalg.ZeroVector())
	return nil
}

func (p *EnvelopeProbe) Twiss() linalg.Twiss3D { return p.cov.Twiss() }

func (p *EnvelopeProbe) Response() linalg.PhaseMatrix { return p.response }

func (p *EnvelopeProbe) SetResponse(m linalg.PhaseMatrix) { p.response = m }

func (p *EnvelopeProbe) Current() float64 { return p.current }

func (p *EnvelopeProbe) SetCurrent(i float64) { p.current = i }

func (p *EnvelopeProbe) BunchFrequency() float64 { return p.bunchFreq }

func (p *EnvelopeProbe) SetBunchFrequency(f float64) { p.bunchFreq = f }

// BunchCharge returns I/f in coulombs, zero when the frequency is unset.
func (p *EnvelopeProbe) BunchCharge() float64 {
	if p.bunchFreq == 0 {
		return 0
	}
	return p.current / p.bunchFreq
}

// Perveance returns the generalized beam perveance
// K = q (I/f) / (4 pi eps0 Er beta^2 gamma^3) in meters.
func (p *EnvelopeProbe) Perveance() float64 {
	k := p.Kinematics()
	b, g := k.Beta(), k.Gamma()
	if b == 0 {
		return 0
	}
	return math.Abs(k.Charge) * p.BunchCharge() /
		(4 * math.Pi * dynamo.Permittivity * k.RestEnergy * b * b * g * g * g)
}

func (p *EnvelopeProbe) Initialize() {
	p.reset()
	p.cov = p.initCov
	p.response = linalg.Identity()
	p.traj = traj.New[*EnvelopeState]()
}

func (p *EnvelopeProbe) CreateState() *EnvelopeState {
	return &EnvelopeState{
		StateBase: p.stateBase(),
		Cov:       p.cov,
		Current:   p.current,
		BunchFreq: p.bunchFreq,
		Response:  p.response,
	}
}

func (p *EnvelopeProbe) ApplyState(s *EnvelopeState) {
	p.applyStateBase(s.StateBase)
	p.cov = s.Cov
	p.current = s.Current
	p.bunchFreq = s.BunchFreq
	p.response = s.Response
}

func (p *EnvelopeProbe) Update() error { return p.traj.SaveState(p.CreateState()) }

func (p *EnvelopeProbe) StateCount() int { return p.traj.Len() }

func (p *EnvelopeProbe) Trajectory() *traj.Trajectory[*EnvelopeState] { return p.traj }
