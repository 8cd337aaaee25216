package dynamo

import (
	"errors"
	"fmt"
)

// Configuration errors. These indicate a setup mistake and are never retried.
var (
	// ErrUnsupportedProbe indicates a probe/algorithm pairing the algorithm cannot handle.
	ErrUnsupportedProbe = errors.New("dynamo: probe type not supported by algorithm")

	// ErrUnknownElementType indicates a hardware type tag with no mapping and no default.
	ErrUnknownElementType = errors.New("dynamo: no element mapping for hardware type")

	// ErrMalformedFit indicates transit-time-factor coefficients that cannot be parsed.
	ErrMalformedFit = errors.New("dynamo: malformed polynomial fit")

	// ErrInvalidTwiss indicates Twiss parameters with beta <= 0 or emittance < 0.
	ErrInvalidTwiss = errors.New("dynamo: invalid twiss parameters")

	// ErrOverlap indicates thick hardware nodes that overlap along the beam path.
	ErrOverlap = errors.New("dynamo: overlapping hardware nodes")

	// ErrParameterBounds indicates an element parameter outside its valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")
)

// Numeric errors. These abort the current run.
var (
	// ErrSingularMatrix indicates a transfer matrix that cannot be inverted.
	ErrSingularMatrix = errors.New("dynamo: singular matrix")

	// ErrNonFiniteMap indicates a transfer map containing NaN or Inf.
	ErrNonFiniteMap = errors.New("dynamo: non-finite transfer map")

	// ErrInvalidLength indicates a negative, NaN or oversized propagation length.
	ErrInvalidLength = errors.New("dynamo: invalid propagation length")

	// ErrInvalidState indicates a probe state with NaN or Inf components.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")
)

// Query and lifecycle errors.
var (
	// ErrOutOfRange indicates a query outside the bounds of a trajectory or sequence.
	ErrOutOfRange = errors.New("dynamo: query out of range")

	// ErrNotInitialized indicates a probe that must be initialized before the requested action.
	ErrNotInitialized = errors.New("dynamo: probe not initialized")

	// ErrNotFound indicates a missing element id or state.
	ErrNotFound = errors.New("dynamo: not found")

	// ErrPositionOrder indicates a state saved upstream of the last saved state.
	ErrPositionOrder = errors.New("dynamo: state position decreases along trajectory")
)

// ModelError wraps an error with the element and position where it occurred.
type ModelError struct {
	ElementID string
	Position  float64
	Wrapped   error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("element %s (s=%.6f): %v", e.ElementID, e.Position, e.Wrapped)
}

func (e *ModelError) Unwrap() error {
	return e.Wrapped
}

// Wrap attaches element context to err. A nil err stays nil and an error
// that already carries element context is returned unchanged.
func Wrap(err error, elementID string, position float64) error {
	if err == nil {
		return nil
	}
	var me *ModelError
	if errors.As(err, &me) {
		return err
	}
	return &ModelError{ElementID: elementID, Position: position, Wrapped: err}
}
