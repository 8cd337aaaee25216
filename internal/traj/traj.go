// Package traj records the probe-state snapshots of one run in beam order.
package traj

import (
	"fmt"
	"iter"
	"sort"

	"github.com/san-kum/beamline/internal/dynamo"
)

// positionTolerance absorbs round-off from summed element lengths.
const positionTolerance = 1e-9

// State is a snapshot that can be placed along the beamline.
type State interface {
	Position() float64
	ElementID() string
	ElementType() string
}

// Trajectory is an ordered record of states with non-decreasing position.
type Trajectory[S State] struct {
	states    []S
	byElement map[string][]int
}

func New[S State]() *Trajectory[S] {
	return &Trajectory[S]{byElement: make(map[string][]int)}
}

// SaveState appends s. Positions must not decrease.
func (t *Trajectory[S]) SaveState(s S) error {
	if n := len(t.states); n > 0 {
		last := t.states[n-1].Position()
		if s.Position() < last-positionTolerance {
			return fmt.Errorf("%w: state at %g saved after %g", dynamo.ErrPositionOrder, s.Position(), last)
		}
	}
	t.byElement[s.ElementID()] = append(t.byElement[s.ElementID()], len(t.states))
	t.states = append(t.states, s)
	return nil
}

// Reset drops every state.
func (t *Trajectory[S]) Reset() {
	t.states = nil
	t.byElement = make(map[string][]int)
}

func (t *Trajectory[S]) Len() int { return len(t.states) }

func (t *Trajectory[S]) At(i int) (S, error) {
	if i < 0 || i >= len(t.states) {
		var zero S
		return zero, fmt.Errorf("%w: state %d of %d", dynamo.ErrOutOfRange, i, len(t.states))
	}
	return t.states[i], nil
}

// All yields the states in order.
func (t *Trajectory[S]) All() iter.Seq2[int, S] {
	return func(yield func(int, S) bool) {
		for i, s := range t.states {
			if !yield(i, s) {
				return
			}
		}
	}
}

// States returns a copy of the recorded states.
func (t *Trajectory[S]) States() []S {
	out := make([]S, len(t.states))
	copy(out, t.states)
	return out
}

func (t *Trajectory[S]) InitialState() (S, error) { return t.At(0) }

func (t *Trajectory[S]) FinalState() (S, error) { return t.At(len(t.states) - 1) }

// PopLastState removes and returns the final state.
func (t *Trajectory[S]) PopLastState() (S, error) {
	s, err := t.FinalState()
	if err != nil {
		return s, err
	}
	n := len(t.states) - 1
	id := s.ElementID()
	idx := t.byElement[id]
	if len(idx) > 0 && idx[len(idx)-1] == n {
		t.byElement[id] = idx[:len(idx)-1]
		if len(t.byElement[id]) == 0 {
			delete(t.byElement, id)
		}
	}
	t.states = t.states[:n]
	return s, nil
}

// StateAtPosition returns the last state saved at pos, or else the
// nearest state below it. A pos outside the recorded range is an error.
func (t *Trajectory[S]) StateAtPosition(pos float64) (S, error) {
	var zero S
	n := len(t.states)
	if n == 0 {
		return zero, fmt.Errorf("%w: empty trajectory", dynamo.ErrOutOfRange)
	}
	first, last := t.states[0].Position(), t.states[n-1].Position()
	if pos < first-positionTolerance || pos > last+positionTolerance {
		return zero, fmt.Errorf("%w: position %g outside [%g, %g]", dynamo.ErrOutOfRange, pos, first, last)
	}
	i := sort.Search(n, func(i int) bool { return t.states[i].Position() > pos+positionTolerance })
	return t.states[i-1], nil
}

// StateNearestPosition returns the state closest to pos, preferring the
// earlier state on a tie. It never fails on a non-empty trajectory.
func (t *Trajectory[S]) StateNearestPosition(pos float64) (S, error) {
	var zero S
	n := len(t.states)
	if n == 0 {
		return zero, fmt.Errorf("%w: empty trajectory", dynamo.ErrOutOfRange)
	}
	i := sort.Search(n, func(i int) bool { return t.states[i].Position() >= pos })
	switch {
	case i == 0:
		return t.states[0], nil
	case i == n:
		return t.states[n-1], nil
	}
	below, above := t.states[i-1], t.states[i]
	if pos-below.Position() <= above.Position()-pos {
		return below, nil
	}
	return above, nil
}

// StatesInRange returns the states with lo <= position <= hi.
func (t *Trajectory[S]) StatesInRange(lo, hi float64) []S {
	var out []S
	for _, s := range t.states {
		p := s.Position()
		if p >= lo-positionTolerance && p <= hi+positionTolerance {
			out = append(out, s)
		}
	}
	return out
}

// StatesForElement returns every state saved at element id.
func (t *Trajectory[S]) StatesForElement(id string) []S {
	idx := t.byElement[id]
	out := make([]S, 0, len(idx))
	for _, i := range idx {
		out = append(out, t.states[i])
	}
	return out
}

// StateForElement returns the first state saved at element id.
func (t *Trajectory[S]) StateForElement(id string) (S, error) {
	idx := t.byElement[id]
	if len(idx) == 0 {
		var zero S
		return zero, fmt.Errorf("%w: no state for element %s", dynamo.ErrNotFound, id)
	}
	return t.states[idx[0]], nil
}

// StatesForElementType returns the states saved at elements of type typ.
func (t *Trajectory[S]) StatesForElementType(typ string) []S {
	var out []S
	for _, s := range t.states {
		if s.ElementType() == typ {
			out = append(out, s)
		}
	}
	return out
}

// SubTrajectory copies the states between lo and hi into a new trajectory.
func (t *Trajectory[S]) SubTrajectory(lo, hi float64) *Trajectory[S] {
	sub := New[S]()
	for _, s := range t.StatesInRange(lo, hi) {
		// StatesInRange keeps trajectory order, so positions never decrease.
		_ = sub.SaveState(s)
	}
	return sub
}

// ElementIDs returns the distinct element ids in beam order.
func (t *Trajectory[S]) ElementIDs() []string {
	seen := make(map[string]bool, len(t.byElement))
	var out []string
	for _, s := range t.states {
		if !seen[s.ElementID()] {
			seen[s.ElementID()] = true
			out = append(out, s.ElementID())
		}
	}
	return out
}
