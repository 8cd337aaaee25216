// Package scenario turns a hardware description into a lattice, binds a
// probe and tracker to it, and drives runs.
package scenario
