package probe

import (
	"fmt"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/linalg"
)

// Attribute names used when saving states.
const (
	tagState   = "state"
	tagSpecies = "species"

	attrElem    = "elem"
	attrType    = "type"
	attrS       = "s"
	attrT       = "t"
	attrW       = "W"
	attrPhase   = "phase"
	attrName    = "name"
	attrQ       = "q"
	attrEr      = "Er"
	attrCoords  = "coords"
	attrCov     = "cov"
	attrCurrent = "I"
	attrFreq    = "f"
	attrMap     = "map"
)

// StateBase is the part of a snapshot common to every probe kind.
type StateBase struct {
	Element  string  `json:"elem"`
	ElemType string  `json:"type"`
	S        float64 `json:"s"`
	T        float64 `json:"t"`
	W        float64 `json:"W"`
	Phi      float64 `json:"phase"`
	Species  Species `json:"species"`
}

func (s StateBase) Position() float64      { return s.S }
func (s StateBase) ElementID() string      { return s.Element }
func (s StateBase) ElementType() string    { return s.ElemType }
func (s StateBase) Time() float64          { return s.T }
func (s StateBase) KineticEnergy() float64 { return s.W }
func (s StateBase) Phase() float64         { return s.Phi }

func (s StateBase) Kinematics() dynamo.Kinematics {
	return dynamo.Kinematics{
		Position:      s.S,
		Time:          s.T,
		KineticEnergy: s.W,
		Charge:        s.Species.Charge,
		RestEnergy:    s.Species.RestEnergy,
	}
}

func (s StateBase) Gamma() float64 { return s.Kinematics().Gamma() }
func (s StateBase) Beta() float64  { return s.Kinematics().Beta() }

func (s StateBase) save(a dynamo.DataAdaptor) dynamo.DataAdaptor {
	st := a.CreateChild(tagState)
	st.SetValue(attrElem, s.Element)
	st.SetValue(attrType, s.ElemType)
	st.SetValue(attrS, s.S)
	st.SetValue(attrT, s.T)
	st.SetValue(attrW, s.W)
	st.SetValue(attrPhase, s.Phi)

	sp := st.CreateChild(tagSpecies)
	sp.SetValue(attrName, s.Species.Name)
	sp.SetValue(attrQ, s.Species.Charge)
	sp.SetValue(attrEr, s.Species.RestEnergy)
	return st
}

func (s *StateBase) load(a dynamo.DataAdaptor) (dynamo.DataAdaptor, error) {
	st := a.ChildAdaptor(tagState)
	if st == nil {
		return nil, fmt.Errorf("%w: missing %s node", dynamo.ErrNotFound, tagState)
	}
	for _, k := range []string{attrS, attrW} {
		if !st.HasAttribute(k) {
			return nil, fmt.Errorf("%w: missing attribute %s", dynamo.ErrNotFound, k)
		}
	}
	s.Element = st.StringValue(attrElem)
	s.ElemType = st.StringValue(attrType)
	s.S = st.DoubleValue(attrS)
	s.T = st.DoubleValue(attrT)
	s.W = st.DoubleValue(attrW)
	s.Phi = st.DoubleValue(attrPhase)

	if sp := st.ChildAdaptor(tagSpecies); sp != nil {
		s.Species = Species{
			Name:       sp.StringValue(attrName),
			Charge:     sp.DoubleValue(attrQ),
			RestEnergy: sp.DoubleValue(attrEr),
		}
	}
	return st, nil
}

// ParticleState is a snapshot of a ParticleProbe.
type ParticleState struct {
	StateBase
	Coords linalg.PhaseVector `json:"coords"`
}

func (s *ParticleState) Save(a dynamo.DataAdaptor) {
	st := s.StateBase.save(a)
	st.SetValue(attrCoords, s.Coords.String())
}

func (s *ParticleState) Load(a dynamo.DataAdaptor) error {
	st, err := s.StateBase.load(a)
	if err != nil {
		return err
	}
	s.Coords, err = linalg.ParsePhaseVector(st.StringValue(attrCoords))
	return err
}

// EnvelopeState is a snapshot of an EnvelopeProbe.
type EnvelopeState struct {
	StateBase
	Cov       linalg.CovarianceMatrix `json:"cov"`
	Current   float64                 `json:"I"`
	BunchFreq float64                 `json:"f"`
	Response  linalg.PhaseMatrix      `json:"response"`
}

// Twiss returns the per-plane Twiss parameters of the envelope.
func (s *EnvelopeState) Twiss() linalg.Twiss3D { return s.Cov.Twiss() }

func (s *EnvelopeState) Save(a dynamo.DataAdaptor) {
	st := s.StateBase.save(a)
	st.SetValue(attrCov, s.Cov.String())
	st.SetValue(attrCurrent, s.Current)
	st.SetValue(attrFreq, s.BunchFreq)
	st.SetValue(attrMap, s.Response.String())
}

func (s *EnvelopeState) Load(a dynamo.DataAdaptor) error {
	st, err := s.StateBase.load(a)
	if err != nil {
		return err
	}
	cov, err := linalg.ParsePhaseMatrix(st.StringValue(attrCov))
	if err != nil {
		return err
	}
	s.Cov = linalg.CovarianceMatrix{PhaseMatrix: cov}
	s.Current = st.DoubleValue(attrCurrent)
	s.BunchFreq = st.DoubleValue(attrFreq)
	s.Response = linalg.Identity()
	if st.HasAttribute(attrMap) {
		if s.Response, err = linalg.ParsePhaseMatrix(st.StringValue(attrMap)); err != nil {
			return err
		}
	}
	return nil
}

// TransferMapState is a snapshot of a TransferMapProbe.
type TransferMapState struct {
	StateBase
	Map    linalg.PhaseMatrix `json:"map"`
	Coords linalg.PhaseVector `json:"coords"`
}

func (s *TransferMapState) Save(a dynamo.DataAdaptor) {
	st := s.StateBase.save(a)
	st.SetValue(attrMap, s.Map.String())
	st.SetValue(attrCoords, s.Coords.String())
}

func (s *TransferMapState) Load(a dynamo.DataAdaptor) error {
	st, err := s.StateBase.load(a)
	if err != nil {
		return err
	}
	if s.Map, err = linalg.ParsePhaseMatrix(st.StringValue(attrMap)); err != nil {
		return err
	}
	s.Coords = linalg.ZeroVector()
	if st.HasAttribute(attrCoords) {
		s.Coords, err = linalg.ParsePhaseVector(st.StringValue(attrCoords))
	}
	return err
}

// TransferMatrix returns the map from s1 to s2, map(s2)*map(s1)^-1.
func TransferMatrix(s1, s2 *TransferMapState) (linalg.PhaseMatrix, error) {
	inv, err := s1.Map.Inverse()
	if err != nil {
		return linalg.PhaseMatrix{}, fmt.Errorf("transfer matrix %s -> %s: %w", s1.Element, s2.Element, err)
	}
	return linalg.Compose(s2.Map, inv), nil
}

// Saver is implemented by every state kind.
type Saver interface {
	Save(a dynamo.DataAdaptor)
	Load(a dynamo.DataAdaptor) error
}
