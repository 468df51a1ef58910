package graph

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateResource = errors.New("graph: duplicate resource")
	ErrUnknownDependency = errors.New("graph: unknown dependency")
	ErrCycle             = errors.New("graph: dependency cycle")
	ErrDocumentMismatch  = errors.New("graph: document does not match its graph")
)

// Validate checks that IDs are unique, every dependency exists and the graph is acyclic.
func (g *Graph) Validate() error {
	if g == nil {
		return errors.New("graph: nil graph")
	}
	_, err := sortNodes(g.Nodes())
	return err
}

// TopologicalOrder returns the nodes in creation order. Ties are broken by declaration order,
// so the result is deterministic.
func (g *Graph) TopologicalOrder() ([]Node, error) {
	if g == nil {
		return nil, errors.New("graph: nil graph")
	}
	return sortNodes(g.Nodes())
}

// Order returns the logical IDs in creation order.
func (g *Graph) Order() ([]string, error) {
	nodes, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.LogicalID()
	}
	return ids, nil
}

func sortNodes(nodes []Node) ([]Node, error) {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		id := n.LogicalID()
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateResource, id)
		}
		index[id] = i
	}

	indegree := make([]int, len(nodes))
	dependents := make([][]int, len(nodes))
	for i, n := range nodes {
		for _, dep := range n.Dependencies() {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, n.LogicalID(), dep)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	done := make([]bool, len(nodes))
	out := make([]Node, 0, len(nodes))
	for len(out) < len(nodes) {
		next := -1
		for i := range nodes {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf("%w among %d unresolved resources", ErrCycle, len(nodes)-len(out))
		}
		done[next] = true
		out = append(out, nodes[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}
	return out, nil
}
