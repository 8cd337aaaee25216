package scenario

import (
	"fmt"
	"slices"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/elem"
)

// Node is one hardware device as read from the accelerator description.
// Position is the device center along the sequence.
type Node struct {
	ID       string             `yaml:"id" json:"id"`
	Type     string             `yaml:"type" json:"type"`
	Position float64            `yaml:"pos" json:"pos"`
	Length   float64            `yaml:"len" json:"len"`
	Cavity   string             `yaml:"cavity,omitempty" json:"cavity,omitempty"`
	Props    map[string]float64 `yaml:"props,omitempty" json:"props,omitempty"`
	Fits     map[string]string  `yaml:"fits,omitempty" json:"fits,omitempty"`
}

// Converter builds the model element for a hardware node.
type Converter func(n Node) (elem.Element, error)

// Mapping selects a converter by hardware type tag.
type Mapping struct {
	converters map[string]Converter
	fallback   Converter
}

func NewMapping() *Mapping {
	return &Mapping{converters: make(map[string]Converter)}
}

// Register binds conv to every tag in types.
func (m *Mapping) Register(conv Converter, types ...string) {
	for _, t := range types {
		m.converters[t] = conv
	}
}

// SetDefault sets the converter used for unregistered tags. nil disables it.
func (m *Mapping) SetDefault(conv Converter) { m.fallback = conv }

func (m *Mapping) Converter(typ string) (Converter, error) {
	if conv, ok := m.converters[typ]; ok {
		return conv, nil
	}
	if m.fallback != nil {
		return m.fallback, nil
	}
	return nil, fmt.Errorf("%w: %q", dynamo.ErrUnknownElementType, typ)
}

// Types returns the registered tags in sorted order.
func (m *Mapping) Types() []string {
	out := make([]string, 0, len(m.converters))
	for t := range m.converters {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Convert builds and configures the element for n.
func (m *Mapping) Convert(n Node) (elem.Element, error) {
	conv, err := m.Converter(n.Type)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.ID, err)
	}
	e, err := conv(n)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.ID, err)
	}
	return e, nil
}

// DefaultMapping returns the standard tag table. Unknown tags become
// markers.
func DefaultMapping() *Mapping {
	m := NewMapping()
	m.Register(convertDrift, "Drift", "DR")
	m.Register(convertQuad, "Quadrupole", "QH", "QV", "PMQH", "PMQV")
	m.Register(convertDipole, "SectorDipole", "Bend", "DH")
	m.Register(convertGap, "RfGap", "RG")
	m.Register(convertThin, "ThinLens")
	m.Register(convertMarker, "Marker", "BPM", "WS", "BCM")
	m.SetDefault(convertMarker)
	return m
}

func configure[E interface {
	elem.Element
	elem.Configurable
	SetHardwareID(string)
}](e E, n Node) (elem.Element, error) {
	if err := elem.Configure(e, n.Props); err != nil {
		return nil, err
	}
	e.SetHardwareID(n.ID)
	return e, nil
}

func convertDrift(n Node) (elem.Element, error) {
	return configure(elem.NewDrift(n.ID, n.Length), n)
}

func convertQuad(n Node) (elem.Element, error) {
	return configure(elem.NewQuadrupole(n.ID, n.Length, 0), n)
}

func convertDipole(n Node) (elem.Element, error) {
	return configure(elem.NewSectorDipole(n.ID, n.Length, 0), n)
}

func convertThin(n Node) (elem.Element, error) {
	return configure(elem.NewThinLens(n.ID, 0), n)
}

func convertMarker(n Node) (elem.Element, error) {
	return configure(elem.NewMarker(n.ID), n)
}

func convertGap(n Node) (elem.Element, error) {
	g := elem.NewRfGap(n.ID, 0, 0, 0, 0)
	if err := g.ConfigureFits(n.Fits); err != nil {
		return nil, err
	}
	return configure(g, n)
}
