package storage

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/probe"
)

type ExportData struct {
	Run    RunMetadata   `json:"run"`
	States []ExportState `json:"states"`
}

// ExportState is the flat, analysis-friendly form of a probe state.
type ExportState struct {
	Element  string      `json:"elem"`
	Type     string      `json:"type"`
	Position float64     `json:"s"`
	Time     float64     `json:"t"`
	Energy   float64     `json:"W"`
	Phase    float64     `json:"phase"`
	Coords   []float64   `json:"coords,omitempty"`
	Envelope []float64   `json:"rms,omitempty"`
	Twiss    []float64   `json:"twiss,omitempty"`
	Map      [][]float64 `json:"map,omitempty"`
}

func flatten(st probe.State) ExportState {
	out := ExportState{
		Element:  st.ElementID(),
		Type:     st.ElementType(),
		Position: st.Position(),
		Time:     st.Time(),
		Energy:   st.KineticEnergy(),
		Phase:    st.Phase(),
	}
	switch s := st.(type) {
	case *probe.ParticleState:
		out.Coords = s.Coords.Slice()
	case *probe.EnvelopeState:
		env := s.Cov.RMSEnvelopes()
		out.Envelope = env[:]
		for _, tw := range s.Twiss() {
			out.Twiss = append(out.Twiss, tw.Alpha, tw.Beta, tw.Emittance)
		}
	case *probe.TransferMapState:
		out.Coords = s.Coords.Slice()
		out.Map = make([][]float64, linalg.Dim)
		for i := range s.Map {
			out.Map[i] = s.Map[i][:]
		}
	}
	return out
}

func ExportJSON(w io.Writer, meta RunMetadata, states []probe.State) error {
	data := ExportData{Run: meta, States: make([]ExportState, len(states))}
	for i, st := range states {
		data.States[i] = flatten(st)
	}
	fillFromStates(&data.Run, states)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// CSVHeader returns the column names WriteCSV uses for states of kind k.
func CSVHeader(k probe.Kind) []string {
	header := []string{"elem", "type", "s", "t", "W", "phase"}
	switch k {
	case probe.KindEnvelope:
		header = append(header, "x_rms", "y_rms", "z_rms",
			"alpha_x", "beta_x", "emit_x",
			"alpha_y", "beta_y", "emit_y",
			"alpha_z", "beta_z", "emit_z")
	default:
		header = append(header, "x", "xp", "y", "yp", "z", "zp")
	}
	return header
}

// WriteCSV writes one row per state. The column set follows the kind of
// the first state; an empty slice writes nothing.
func WriteCSV(w io.Writer, states []probe.State) error {
	if len(states) == 0 {
		return nil
	}
	kind := probe.KindParticle
	if _, ok := states[0].(*probe.EnvelopeState); ok {
		kind = probe.KindEnvelope
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader(kind)); err != nil {
		return err
	}
	for _, st := range states {
		fs := flatten(st)
		row := []string{fs.Element, fs.Type, format(fs.Position), format(fs.Time), format(fs.Energy), format(fs.Phase)}
		if kind == probe.KindEnvelope {
			for _, v := range append(fs.Envelope, fs.Twiss...) {
				row = append(row, format(v))
			}
		} else {
			for _, v := range fs.Coords {
				row = append(row, format(v))
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
