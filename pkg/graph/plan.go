package graph

type ChangeAction string

const (
	ChangeCreate ChangeAction = "create"
	ChangeUpdate ChangeAction = "update"
	ChangeDelete ChangeAction = "delete"
	ChangeNoop   ChangeAction = "noop"
)

type Change struct {
	Resource string       `json:"resource"`
	Kind     Kind         `json:"kind"`
	Action   ChangeAction `json:"action"`
}

// Plan previews what applying g on top of state would do, without mutating either. Node
// changes come in creation order, then the delegation, then deletions sorted by ID.
func Plan(state *State, g *Graph) ([]Change, error) {
	if state == nil {
		state = NewState()
	}
	nodes, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	changes := make([]Change, 0, len(nodes)+1)
	present := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		id := n.LogicalID()
		present[id] = true

		action := ChangeNoop
		rec, ok := state.Resources[id]
		switch {
		case !ok:
			action = ChangeCreate
		case rec.Kind != n.Kind() || rec.Fingerprint != Fingerprint(n):
			action = ChangeUpdate
		}
		changes = append(changes, Change{Resource: id, Kind: n.Kind(), Action: action})
	}

	delegation := Change{Resource: g.Delegation.ID, Kind: KindDelegation, Action: ChangeNoop}
	if _, issued := state.Delegations[g.Delegation.Key()]; !issued {
		delegation.Action = ChangeCreate
	}
	changes = append(changes, delegation)

	for _, id := range state.sortedIDs() {
		if present[id] {
			continue
		}
		changes = append(changes, Change{Resource: id, Kind: state.Resources[id].Kind, Action: ChangeDelete})
	}
	return changes, nil
}

// HasChanges reports whether any change is not a noop.
func HasChanges(changes []Change) bool {
	for _, c := range changes {
		if c.Action != ChangeNoop {
			return true
		}
	}
	return false
}
