// Package elem provides the beamline element catalog.
//
// Every element kind implements [Element]: a length and a first-order
// transfer map computed from the probe kinematics at the entrance of the
// step. Kinds are a closed set tagged by [Kind]; hardware type tags are
// mapped to constructors by the scenario package, not here.
//
//   - [Drift]: field-free space
//   - [Quadrupole]: thick magnetic quadrupole
//   - [SectorDipole]: sector bend with dispersion
//   - [RfGap]: thin accelerating gap with transit-time-factor fits
//   - [ThinLens]: thin focusing kick
//   - [Marker]: zero-length pass-through
//
// Elements hold no per-run state and may be shared by concurrent runs.
// Parameter setters (SetParam) mutate in place and must not race with a run.
package elem
