// Package dynamo provides the shared primitives of the beam-dynamics model.
//
// The package defines the values every other model package agrees on:
//
//   - [Kinematics]: position, time, energy and species of a probe
//   - physical constants ([LightSpeed], [ElementaryCharge], [Permittivity])
//   - the error taxonomy ([ModelError] and the sentinel errors)
//   - [DataAdaptor]: hierarchical key/value sink used to save and restore
//     probe states
//
// # Units
//
// Lengths are in meters, time in seconds, energies in electron-volts,
// angles in radians and species charge in units of the elementary charge.
//
// # Thread Safety
//
// Constants are read-only. [MapAdaptor] is NOT thread-safe.
package dynamo
