package tracker

import (
	"fmt"
	"log/slog"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/elem"
	"github.com/san-kum/beamline/internal/probe"
)

// UpdatePolicy is a bit set selecting when a probe saves its state.
type UpdatePolicy int

const (
	UpdateCustom          UpdatePolicy = 0
	UpdateAlways          UpdatePolicy = 1
	UpdateExit            UpdatePolicy = 2
	UpdateEntrance        UpdatePolicy = 4
	UpdateEntranceAndExit UpdatePolicy = UpdateEntrance | UpdateExit
)

func (u UpdatePolicy) String() string {
	switch u {
	case UpdateCustom:
		return "custom"
	case UpdateAlways:
		return "always"
	case UpdateExit:
		return "exit"
	case UpdateEntrance:
		return "entrance"
	case UpdateEntranceAndExit:
		return "entrance+exit"
	default:
		return fmt.Sprintf("policy(%d)", int(u))
	}
}

// ParsePolicy maps a policy name to its value.
func ParsePolicy(s string) (UpdatePolicy, error) {
	for _, u := range []UpdatePolicy{UpdateCustom, UpdateAlways, UpdateExit, UpdateEntrance, UpdateEntranceAndExit} {
		if u.String() == s {
			return u, nil
		}
	}
	return 0, fmt.Errorf("%w: update policy %q", dynamo.ErrParameterBounds, s)
}

// Algorithm advances one probe kind through elements.
type Algorithm interface {
	Type() string
	// ValidProbe reports whether p is the kind this algorithm handles.
	ValidProbe(p probe.Probe) error
	// Initialize clears per-run state such as the start/stop range.
	Initialize()
	Propagate(p probe.Probe, e elem.Element) error
	BackPropagate(p probe.Probe, e elem.Element) error

	SetStartElementID(id string)
	SetStopElementID(id string, include bool)
}

// Tracker holds the update policy, the element range and the logging
// shared by every algorithm.
type Tracker struct {
	typ    string
	policy UpdatePolicy

	startID     string
	stopID      string
	includeStop bool
	started     bool
	stopped     bool

	elemPos  float64
	backward bool
	debug    bool
	log      *slog.Logger
}

func newTracker(typ string) Tracker {
	return Tracker{
		typ:         typ,
		policy:      UpdateExit,
		includeStop: true,
		log:         slog.Default().With(slog.String("component", "tracker"), slog.String("algorithm", typ)),
	}
}

func (t *Tracker) Type() string { return t.typ }

func (t *Tracker) Policy() UpdatePolicy { return t.policy }

func (t *Tracker) SetPolicy(u UpdatePolicy) { t.policy = u }

// SetDebug logs every element step at debug level.
func (t *Tracker) SetDebug(on bool) { t.debug = on }

func (t *Tracker) SetLogger(l *slog.Logger) {
	t.log = l.With(slog.String("algorithm", t.typ))
}

// SetStartElementID skips every element before id. An empty id starts at
// the first element.
func (t *Tracker) SetStartElementID(id string) { t.startID = id }

// SetStopElementID skips every element after id, and id itself unless
// include is set. An empty id runs to the end.
func (t *Tracker) SetStopElementID(id string, include bool) {
	t.stopID = id
	t.includeStop = include
}

func (t *Tracker) StartElementID() string { return t.startID }
func (t *Tracker) StopElementID() string  { return t.stopID }

// ElementPosition returns the distance covered inside the current element.
func (t *Tracker) ElementPosition() float64 { return t.elemPos }

func (t *Tracker) Initialize() {
	t.started = t.startID == ""
	t.stopped = false
	t.elemPos = 0
}

// validElement applies the start/stop range to the element about to be
// entered.
func (t *Tracker) validElement(id string) bool {
	if !t.started {
		if id != t.startID {
			return false
		}
		t.started = true
	}
	if t.stopped {
		return false
	}
	if t.stopID != "" && id == t.stopID {
		t.stopped = true
		return t.includeStop
	}
	return true
}

// stepFunc moves p through e.
type stepFunc func(p probe.Probe, e elem.Element) error

// propagate moves p through e. Going backward the probe is moved but its
// trajectory is left untouched, since it only records downstream motion.
func (t *Tracker) propagate(p probe.Probe, e elem.Element, step stepFunc, backward bool) error {
	if !t.validElement(e.ID()) {
		return nil
	}
	p.SetCurrentElement(e.ID(), e.Type())
	t.elemPos = 0
	t.backward = backward
	defer func() { t.backward = false }()

	if t.policy&UpdateEntrance != 0 && !backward {
		if err := p.Update(); err != nil {
			return dynamo.Wrap(err, e.ID(), p.Kinematics().Position)
		}
	}

	start := p.Kinematics().Position
	if err := step(p, e); err != nil {
		return dynamo.Wrap(err, e.ID(), start)
	}

	if t.policy&UpdateExit != 0 && t.policy&UpdateAlways == 0 && !backward {
		if err := p.Update(); err != nil {
			return dynamo.Wrap(err, e.ID(), p.Kinematics().Position)
		}
	}

	if t.debug {
		k := p.Kinematics()
		t.log.Debug("element done",
			slog.String("elem", e.ID()),
			slog.String("type", e.Type()),
			slog.Float64("s", k.Position),
			slog.Float64("W", k.KineticEnergy),
			slog.Bool("backward", backward),
		)
	}
	return nil
}

// stepDone records the end of one sub-step.
func (t *Tracker) stepDone(p probe.Probe, h float64) error {
	t.elemPos += h
	if t.policy&UpdateAlways != 0 && !t.backward {
		return p.Update()
	}
	return nil
}

// motion is the reference-particle change across one step.
type motion struct {
	length, dt, dw, dphi float64
}

func forwardMotion(k dynamo.Kinematics, e elem.Element, h float64) motion {
	m := motion{
		length: h,
		dt:     e.ElapsedTime(k, h),
		dw:     e.EnergyGain(k, h),
	}
	if ps, ok := e.(elem.PhaseShifter); ok {
		m.dphi = ps.PhaseSlip(k)
	}
	return m
}

// entryKinematics estimates the entrance kinematics of e for a probe at
// its exit.
func entryKinematics(k dynamo.Kinematics, e elem.Element) dynamo.Kinematics {
	in := k
	in.Position -= e.Length()
	in.KineticEnergy -= e.EnergyGain(k, e.Length())
	return in
}

func apply(p probe.Probe, m motion) {
	p.Advance(m.length, m.dt, m.dw, m.dphi)
}

func reverse(p probe.Probe, m motion) {
	p.Advance(-m.length, -m.dt, -m.dw, -m.dphi)
}

func unsupported(alg string, p probe.Probe) error {
	return fmt.Errorf("%w: %s tracker cannot propagate %s probe", dynamo.ErrUnsupportedProbe, alg, p.Kind())
}

// New returns the tracker for probe kind k.
func New(k probe.Kind) (Algorithm, error) {
	switch k {
	case probe.KindParticle:
		return NewParticleTracker(), nil
	case probe.KindEnvelope:
		return NewEnvelopeTracker(), nil
	case probe.KindTransferMap:
		return NewTransferMapTracker(), nil
	}
	return nil, fmt.Errorf("%w: no tracker for %s", dynamo.ErrUnsupportedProbe, k)
}
