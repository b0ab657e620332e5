package bayes

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicateNode = errors.New("node already present in network")
	ErrUnknownNode   = errors.New("node not present in network")
	ErrMissingParent = errors.New("parent reference does not resolve")
	ErrCyclicNetwork = errors.New("network contains a cycle")
)

// Network is an arena of nodes indexed by variable name. Edges are name
// references resolved against the arena, never live pointers, so a deep
// copy is a per-node structural clone.
type Network struct {
	nodes map[string]*Node

	// Cached topological order, nil after any structural change.
	order []string
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{nodes: map[string]*Node{}}
}

// AddNode inserts a node into the arena and links child references on both
// sides, including parents declared before this node existed.
func (nw *Network) AddNode(node *Node) error {
	if _, ok := nw.nodes[node.name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, node.name)
	}
	nw.nodes[node.name] = node
	for _, parent := range node.parents {
		if parentNode, ok := nw.nodes[parent]; ok {
			parentNode.addChild(node.name)
		}
	}
	for _, existing := range nw.nodes {
		for _, parent := range existing.parents {
			if parent == node.name {
				node.addChild(existing.name)
			}
		}
	}
	nw.order = nil
	return nil
}

// ReplaceNode swaps the node registered under the same name, relinking
// parent and child references on both sides. The replacement may declare a
// different parent set than the original.
func (nw *Network) ReplaceNode(node *Node) error {
	existing, ok := nw.nodes[node.name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, node.name)
	}
	for _, parent := range existing.parents {
		if parentNode, exists := nw.nodes[parent]; exists {
			parentNode.removeChild(node.name)
		}
	}
	node.children = copyNames(existing.children)
	nw.nodes[node.name] = node
	for _, parent := range node.parents {
		if parentNode, exists := nw.nodes[parent]; exists {
			parentNode.addChild(node.name)
		}
	}
	nw.order = nil
	return nil
}

// Node returns the node registered under the name.
func (nw *Network) Node(name string) (*Node, bool) {
	node, ok := nw.nodes[name]
	return node, ok
}

// Has reports whether a node is registered under the name.
func (nw *Network) Has(name string) bool {
	_, ok := nw.nodes[name]
	return ok
}

// Remove deletes the node from the arena and unlinks it from its parents'
// child lists. Children keep their parent references; a dangling reference
// surfaces as ErrMissingParent on the next sort.
func (nw *Network) Remove(name string) error {
	node, ok := nw.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}
	for _, parent := range node.parents {
		if parentNode, exists := nw.nodes[parent]; exists {
			parentNode.removeChild(name)
		}
	}
	delete(nw.nodes, name)
	nw.order = nil
	return nil
}

// Size returns the number of nodes in the arena.
func (nw *Network) Size() int {
	return len(nw.nodes)
}

// Names returns every registered variable name in sorted order.
func (nw *Network) Names() []string {
	names := make([]string, 0, len(nw.nodes))
	for name := range nw.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VariablesOfKind returns the sorted names of nodes with the given kind.
func (nw *Network) VariablesOfKind(kind NodeKind) []string {
	names := make([]string, 0)
	for name, node := range nw.nodes {
		if node.kind == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ActionVariables returns the sorted action node names.
func (nw *Network) ActionVariables() []string {
	return nw.VariablesOfKind(ActionNode)
}

// ChanceVariables returns the sorted chance node names, parameters
// included.
func (nw *Network) ChanceVariables() []string {
	return nw.VariablesOfKind(ChanceNode)
}

// UtilityVariables returns the sorted utility node names.
func (nw *Network) UtilityVariables() []string {
	return nw.VariablesOfKind(UtilityNode)
}

// ParameterVariables returns the sorted names of chance nodes flagged as
// learnable parameters.
func (nw *Network) ParameterVariables() []string {
	names := make([]string, 0)
	for name, node := range nw.nodes {
		if node.kind == ChanceNode && node.parameter {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// PredictionVariables returns the sorted names carrying the prediction
// marker.
func (nw *Network) PredictionVariables() []string {
	names := make([]string, 0)
	for name := range nw.nodes {
		if IsPrediction(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// HasDescendantIn reports whether any strict descendant of the node appears
// in the candidate set.
func (nw *Network) HasDescendantIn(name string, candidates map[string]bool) bool {
	node, ok := nw.nodes[name]
	if !ok {
		return false
	}
	visited := map[string]bool{name: true}
	frontier := node.Children()
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		if visited[next] {
			continue
		}
		visited[next] = true
		if candidates[next] {
			return true
		}
		if child, exists := nw.nodes[next]; exists {
			frontier = append(frontier, child.Children()...)
		}
	}
	return false
}

// TopologicalOrder returns the variable names ordered so every parent
// appears strictly before its children. Sampling walks this order forward,
// ascending from roots. The order is cached until the structure changes.
func (nw *Network) TopologicalOrder() ([]string, error) {
	if nw.order != nil {
		ordered := make([]string, len(nw.order))
		copy(ordered, nw.order)
		return ordered, nil
	}

	inDegree := make(map[string]int, len(nw.nodes))
	for name, node := range nw.nodes {
		for _, parent := range node.parents {
			if _, ok := nw.nodes[parent]; !ok {
				return nil, fmt.Errorf("%w: %s requires %s", ErrMissingParent, name, parent)
			}
		}
		inDegree[name] = len(node.parents)
	}

	queue := make([]string, 0, len(nw.nodes))
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	ordered := make([]string, 0, len(nw.nodes))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		ordered = append(ordered, name)
		for _, child := range nw.nodes[name].Children() {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(ordered) != len(nw.nodes) {
		return nil, ErrCyclicNetwork
	}

	nw.order = ordered
	copied := make([]string, len(ordered))
	copy(copied, ordered)
	return copied, nil
}

// Copy returns a deep structural clone. Node state is independent between
// original and copy; immutable distributions are shared by reference.
func (nw *Network) Copy() *Network {
	cloned := &Network{nodes: make(map[string]*Node, len(nw.nodes))}
	for name, node := range nw.nodes {
		cloned.nodes[name] = node.Clone()
	}
	if nw.order != nil {
		cloned.order = make([]string, len(nw.order))
		copy(cloned.order, nw.order)
	}
	return cloned
}
