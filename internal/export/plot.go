package export

import (
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/beamline/internal/analysis"
	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/probe"
)

var planeColors = [3]color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
}

var planeLabels = [3]string{"x", "y", "z"}

// EnvelopePlot plots the RMS sizes of each plane along the trajectory,
// in millimetres.
func EnvelopePlot(title string, states []probe.State) (*plot.Plot, error) {
	var lines [3]plotter.XYs
	for _, st := range states {
		es, ok := st.(*probe.EnvelopeState)
		if !ok {
			continue
		}
		env := es.Cov.RMSEnvelopes()
		for i := range lines {
			lines[i] = append(lines[i], plotter.XY{X: es.Position(), Y: env[i] * 1e3})
		}
	}
	if len(lines[0]) == 0 {
		return nil, fmt.Errorf("no envelope states to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "s (m)"
	p.Y.Label.Text = "rms size (mm)"
	for i, xy := range lines {
		if err := addLine(p, xy, planeLabels[i], planeColors[i]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// OrbitPlot plots the transverse centroid of a particle or transfer map
// trajectory, in millimetres.
func OrbitPlot(title string, states []probe.State) (*plot.Plot, error) {
	var x, y plotter.XYs
	for _, st := range states {
		var v linalg.PhaseVector
		switch s := st.(type) {
		case *probe.ParticleState:
			v = s.Coords
		case *probe.TransferMapState:
			v = s.Coords
		default:
			continue
		}
		x = append(x, plotter.XY{X: st.Position(), Y: v[linalg.X] * 1e3})
		y = append(y, plotter.XY{X: st.Position(), Y: v[linalg.Y] * 1e3})
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("no orbit states to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "s (m)"
	p.Y.Label.Text = "centroid (mm)"
	if err := addLine(p, x, "x", planeColors[0]); err != nil {
		return nil, err
	}
	if err := addLine(p, y, "y", planeColors[1]); err != nil {
		return nil, err
	}
	return p, nil
}

// EnergyPlot plots kinetic energy along the trajectory in MeV.
func EnergyPlot(title string, states []probe.State) (*plot.Plot, error) {
	xy := make(plotter.XYs, 0, len(states))
	for _, st := range states {
		xy = append(xy, plotter.XY{X: st.Position(), Y: st.KineticEnergy() / 1e6})
	}
	if len(xy) == 0 {
		return nil, fmt.Errorf("no states to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "s (m)"
	p.Y.Label.Text = "W (MeV)"
	if err := addLine(p, xy, "W", planeColors[2]); err != nil {
		return nil, err
	}
	return p, nil
}

// PhaseSpacePlot draws phase ellipses for each plane of an envelope state.
func PhaseSpacePlot(title string, st *probe.EnvelopeState) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "u (mm)"
	p.Y.Label.Text = "u' (mrad)"

	for i, tw := range st.Twiss() {
		pts := analysis.TwissEllipse(tw, 128)
		if pts == nil {
			continue
		}
		xy := make(plotter.XYs, 0, len(pts)+1)
		for _, pt := range pts {
			xy = append(xy, plotter.XY{X: pt.X * 1e3, Y: pt.Y * 1e3})
		}
		xy = append(xy, xy[0])
		if err := addLine(p, xy, planeLabels[i], planeColors[i]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func addLine(p *plot.Plot, xy plotter.XYs, label string, c color.Color) error {
	l, err := plotter.NewLine(xy)
	if err != nil {
		return err
	}
	l.LineStyle.Color = c
	l.LineStyle.Width = vg.Points(1.2)
	p.Add(l)
	p.Legend.Add(label, l)
	return nil
}

// Save writes p to path. The format follows the extension (png, svg, pdf, eps).
func Save(p *plot.Plot, path string, width, height vg.Length) error {
	return p.Save(width, height, path)
}

// Write renders p in format to w.
func Write(w io.Writer, p *plot.Plot, format string, width, height vg.Length) error {
	wt, err := p.WriterTo(width, height, strings.ToLower(format))
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// FormatOf returns the plot format implied by a file name.
func FormatOf(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "svg"
	}
	return strings.ToLower(ext)
}
