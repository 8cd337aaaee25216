// Package lattice holds the composite beamline: an arena of sequence and
// element nodes addressed by NodeID. Sequences own ordered children;
// elements are leaves. Aggregate lengths are recomputed on demand and
// memoized against a generation counter that every mutation bumps.
package lattice
