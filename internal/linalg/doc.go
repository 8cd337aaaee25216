// Package linalg provides the fixed-size phase-space algebra of the model.
//
// Phase coordinates are homogeneous 7-vectors (x, x', y, y', z, z', 1) and
// transfer maps are 7x7 homogeneous matrices, so translations (alignment
// errors, beam centroids) compose with the linear optics:
//
//	phi := linalg.Compose(quad, drift) // drift first, then quad
//	out := phi.TimesVector(in)
//
// Matrices and vectors are value types; every operation returns a new value.
package linalg
