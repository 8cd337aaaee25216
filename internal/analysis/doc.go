// Package analysis provides lattice and trajectory analysis tools.
//
//   - [PeriodicSolution]: matched Twiss and phase advance of a one-period map
//   - [GrowthRate]: largest eigenvalue modulus of a linear map
//   - [Scan]: parameter sweep of one element, measuring each run
//   - [OrbitSpectrum]: spatial spectrum of a particle orbit
//   - [PhasePortrait] and [TwissEllipse]: 2D phase space views
//
// # Stability
//
// A periodic cell is stable in a plane when the trace of its 2x2 block
// lies strictly between -2 and 2:
//
//	sol := analysis.PeriodicSolution(cell)
//	if !sol[linalg.PlaneX].Stable {
//	    // no matched beam exists
//	}
package analysis
