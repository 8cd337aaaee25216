package analysis

import (
	"math"
	"strings"

	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/probe"
)

type Point struct{ X, Y float64 }

// PhasePortrait collects coordinate pairs (xIdx, yIdx) from particle or
// transfer map states. Other states are skipped.
func PhasePortrait(states []probe.State, xIdx, yIdx int) []Point {
	if xIdx < 0 || xIdx >= linalg.HOM || yIdx < 0 || yIdx >= linalg.HOM {
		return nil
	}
	pts := make([]Point, 0, len(states))
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
		pts = append(pts, Point{X: v[xIdx], Y: v[yIdx]})
	}
	return pts
}

// TwissEllipse samples n points on the RMS phase ellipse
// gamma*x^2 + 2*alpha*x*x' + beta*x'^2 = emittance.
func TwissEllipse(tw linalg.Twiss, n int) []Point {
	if n < 3 || tw.Beta <= 0 || tw.Emittance < 0 {
		return nil
	}
	pts := make([]Point, n)
	a := math.Sqrt(tw.Emittance * tw.Beta)
	for i := range pts {
		phi := 2 * math.Pi * float64(i) / float64(n)
		x := a * math.Cos(phi)
		pts[i] = Point{
			X: x,
			Y: -math.Sqrt(tw.Emittance/tw.Beta)*math.Sin(phi) - tw.Alpha/tw.Beta*x,
		}
	}
	return pts
}

// PointsToASCII converts points to ASCII art scaled to fit the canvas.
func PointsToASCII(pts []Point, width, height int) string {
	if len(pts) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	minX, maxX := pts[0].X, pts[0].X
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	for _, p := range pts {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	// axes, where visible
	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if col >= 0 && col < width && canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if row >= 0 && row < height && canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
