// Package probe provides the simulated carriers of dynamical state:
// single particles, rms envelopes and accumulated transfer maps.
//
// A probe holds an initial condition set through its setters. Initialize
// applies it and opens a fresh trajectory; a tracker then moves the probe
// through Propagating to Completed or Failed. Running again requires
// another Initialize.
package probe
