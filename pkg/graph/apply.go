package graph

import (
	"context"
	"errors"
	"sync"

	"github.com/theory-cloud/cvsite"
)

// Provisioner applies resources. Implementations must be idempotent: ensuring the same node
// twice converges to one resource, and a delegation whose key was already issued is a no-op.
type Provisioner interface {
	Ensure(ctx context.Context, node Node) error
	Delegate(ctx context.Context, d Delegation) error
}

// Apply ensures every node in creation order and issues the nameserver delegation once the
// hosted zone exists. The first failure stops the walk and is returned as a
// *cvsite.ProvisioningError; nothing is retried.
func Apply(ctx context.Context, p Provisioner, g *Graph) error {
	if p == nil {
		return errors.New("graph: nil provisioner")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	nodes, err := g.TopologicalOrder()
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return cvsite.NewProvisioningError(n.LogicalID(), string(n.Kind()), err)
		}
		if err := p.Ensure(ctx, n); err != nil {
			return cvsite.NewProvisioningError(n.LogicalID(), string(n.Kind()), err)
		}
		if n.LogicalID() == g.Delegation.Zone {
			if err := p.Delegate(ctx, g.Delegation); err != nil {
				return cvsite.NewProvisioningError(g.Delegation.ID, string(KindDelegation), err)
			}
		}
	}
	return nil
}

// Ledger is a Provisioner that records applied resources in a State. The deploy command
// applies the graph to it after the provisioning engine succeeds, so the next plan can
// preview drift against what was last applied.
type Ledger struct {
	mu    sync.Mutex
	state *State

	ensured   int
	delegated int
}

var _ Provisioner = (*Ledger)(nil)

func NewLedger(state *State) *Ledger {
	return &Ledger{state: state.clone()}
}

func (l *Ledger) Ensure(_ context.Context, node Node) error {
	if node == nil {
		return errors.New("graph: nil node")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Resources[node.LogicalID()] = Record{
		Kind:        node.Kind(),
		Fingerprint: Fingerprint(node),
	}
	l.ensured++
	return nil
}

func (l *Ledger) Delegate(_ context.Context, d Delegation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, issued := l.state.Delegations[d.Key()]; issued {
		return nil
	}
	l.state.Delegations[d.Key()] = d.DomainName
	l.delegated++
	return nil
}

// Retain drops records for resources no longer in g.
func (l *Ledger) Retain(g *Graph) {
	keep := map[string]bool{}
	for _, n := range g.Nodes() {
		keep[n.LogicalID()] = true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range l.state.Resources {
		if !keep[id] {
			delete(l.state.Resources, id)
		}
	}
}

// State returns a copy of the recorded state.
func (l *Ledger) State() *State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.clone()
}

// Count returns how many recorded resources have kind.
func (l *Ledger) Count(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.state.Resources {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// DelegationsIssued counts delegations actually issued through this ledger.
func (l *Ledger) DelegationsIssued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delegated
}
