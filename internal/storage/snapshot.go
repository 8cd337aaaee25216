package storage

import (
	"fmt"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/probe"
)

const (
	tagTrajectory = "trajectory"
	tagSnapshot   = "snapshot"
)

// Snapshot saves states in order under a single adaptor tree.
func Snapshot(states []probe.State) *dynamo.MapAdaptor {
	root := dynamo.NewMapAdaptor(tagTrajectory)
	for _, st := range states {
		st.Save(root.CreateChild(tagSnapshot))
	}
	return root
}

// Restore is the inverse of Snapshot for states of kind k.
func Restore(root *dynamo.MapAdaptor, k probe.Kind) ([]probe.State, error) {
	if root.Tag != tagTrajectory {
		return nil, fmt.Errorf("%w: expected %s node, got %q", dynamo.ErrNotFound, tagTrajectory, root.Tag)
	}
	states := make([]probe.State, 0, len(root.Children))
	for i, child := range root.Children {
		if child.Tag != tagSnapshot {
			continue
		}
		st := probe.NewState(k)
		if err := st.Load(child); err != nil {
			return nil, fmt.Errorf("state %d: %w", i, err)
		}
		states = append(states, st)
	}
	return states, nil
}
