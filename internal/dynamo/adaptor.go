package dynamo

import (
	"fmt"
	"strconv"
)

// DataAdaptor is a hierarchical attribute sink/source. Probe states save
// their attributes through it; the persistence layer decides the format.
type DataAdaptor interface {
	Name() string
	HasAttribute(key string) bool
	SetValue(key string, value any)
	StringValue(key string) string
	DoubleValue(key string) float64
	DoubleArray(key string) []float64
	CreateChild(name string) DataAdaptor
	// ChildAdaptor returns the first child with the given name, or nil.
	ChildAdaptor(name string) DataAdaptor
}

// MapAdaptor is an in-memory DataAdaptor. It marshals cleanly to JSON and YAML.
type MapAdaptor struct {
	Tag      string         `json:"name" yaml:"name"`
	Attrs    map[string]any `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Children []*MapAdaptor  `json:"children,omitempty" yaml:"children,omitempty"`
}

func NewMapAdaptor(name string) *MapAdaptor {
	return &MapAdaptor{Tag: name, Attrs: make(map[string]any)}
}

func (m *MapAdaptor) Name() string { return m.Tag }

func (m *MapAdaptor) HasAttribute(key string) bool {
	_, ok := m.Attrs[key]
	return ok
}

func (m *MapAdaptor) SetValue(key string, value any) {
	if m.Attrs == nil {
		m.Attrs = make(map[string]any)
	}
	m.Attrs[key] = value
}

func (m *MapAdaptor) StringValue(key string) string {
	v, ok := m.Attrs[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (m *MapAdaptor) DoubleValue(key string) float64 {
	switch v := m.Attrs[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func (m *MapAdaptor) DoubleArray(key string) []float64 {
	switch v := m.Attrs[key].(type) {
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]float64, 0, len(v))
		for _, x := range v {
			switch f := x.(type) {
			case float64:
				out = append(out, f)
			case int:
				out = append(out, float64(f))
			}
		}
		return out
	default:
		return nil
	}
}

func (m *MapAdaptor) CreateChild(name string) DataAdaptor {
	child := NewMapAdaptor(name)
	m.Children = append(m.Children, child)
	return child
}

func (m *MapAdaptor) ChildAdaptor(name string) DataAdaptor {
	for _, c := range m.Children {
		if c.Tag == name {
			return c
		}
	}
	return nil
}
