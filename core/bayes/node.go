package bayes

import "sort"

// NodeKind identifies the role a node plays in the network.
type NodeKind int

const (
	// ChanceNode carries a conditional distribution over its values.
	ChanceNode NodeKind = iota

	// ActionNode enumerates the decisions available to the planner.
	ActionNode

	// UtilityNode scores assignments over its parent variables.
	UtilityNode
)

var nodeKindNames = map[NodeKind]string{
	ChanceNode:  "chance",
	ActionNode:  "action",
	UtilityNode: "utility",
}

func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// UtilityFunc scores an assignment over a utility node's parent variables.
type UtilityFunc func(parents Assignment) float64

// Node is one entry in the network arena. Edges are held as parent and child
// name references resolved against the owning network.
type Node struct {
	name     string
	kind     NodeKind
	parents  []string
	children []string

	// Chance node state.
	distrib   Distribution
	parameter bool

	// Action node state.
	domain  []Value
	decided *Value

	// Utility node state.
	utility UtilityFunc
}

// NewChanceNode returns a chance node with the given parents and conditional
// distribution.
func NewChanceNode(name string, parents []string, distrib Distribution) *Node {
	return &Node{
		name:    name,
		kind:    ChanceNode,
		parents: copyNames(parents),
		distrib: distrib,
	}
}

// NewParameterNode returns a root chance node flagged as a learnable
// parameter. Parameter nodes never have parents.
func NewParameterNode(name string, distrib Distribution) *Node {
	return &Node{
		name:      name,
		kind:      ChanceNode,
		distrib:   distrib,
		parameter: true,
	}
}

// NewActionNode returns an action node over the given decision domain. The
// none value is appended when absent so every action node admits the no-op
// decision.
func NewActionNode(name string, domain []Value) *Node {
	values := make([]Value, 0, len(domain)+1)
	hasNone := false
	for _, value := range domain {
		if value.IsNone() {
			hasNone = true
		}
		values = append(values, value)
	}
	if !hasNone {
		values = append(values, None())
	}
	return &Node{name: name, kind: ActionNode, domain: values}
}

// NewUtilityNode returns a utility node scoring assignments over its parent
// variables.
func NewUtilityNode(name string, parents []string, utility UtilityFunc) *Node {
	return &Node{
		name:    name,
		kind:    UtilityNode,
		parents: copyNames(parents),
		utility: utility,
	}
}

// Name returns the node's variable name.
func (n *Node) Name() string {
	return n.name
}

// Kind returns the node's role.
func (n *Node) Kind() NodeKind {
	return n.kind
}

// Parents returns a copy of the parent variable names.
func (n *Node) Parents() []string {
	return copyNames(n.parents)
}

// Children returns a sorted copy of the child variable names.
func (n *Node) Children() []string {
	children := copyNames(n.children)
	sort.Strings(children)
	return children
}

// Distrib returns the conditional distribution of a chance node, or nil for
// other kinds.
func (n *Node) Distrib() Distribution {
	return n.distrib
}

// SetDistrib replaces the conditional distribution of a chance node.
func (n *Node) SetDistrib(distrib Distribution) {
	n.distrib = distrib
}

// IsParameter reports whether the node is a learnable parameter.
func (n *Node) IsParameter() bool {
	return n.parameter
}

// Domain returns a copy of an action node's decision domain, or nil for
// other kinds.
func (n *Node) Domain() []Value {
	if n.kind != ActionNode {
		return nil
	}
	domain := make([]Value, len(n.domain))
	copy(domain, n.domain)
	return domain
}

// Decided returns the committed decision of an action node. The second
// return is false while the node is undecided.
func (n *Node) Decided() (Value, bool) {
	if n.decided == nil {
		return Value{}, false
	}
	return *n.decided, true
}

// Decide commits a decision on an action node.
func (n *Node) Decide(value Value) {
	committed := value
	n.decided = &committed
}

// ClearDecision returns an action node to the undecided state.
func (n *Node) ClearDecision() {
	n.decided = nil
}

// Utility evaluates a utility node against the given parent assignment.
// Non-utility nodes score zero.
func (n *Node) Utility(parents Assignment) float64 {
	if n.utility == nil {
		return 0
	}
	return n.utility(parents)
}

// Clone returns a deep copy of the node. Distributions and utility
// functions are immutable and shared by reference.
func (n *Node) Clone() *Node {
	cloned := &Node{
		name:      n.name,
		kind:      n.kind,
		parents:   copyNames(n.parents),
		children:  copyNames(n.children),
		distrib:   n.distrib,
		parameter: n.parameter,
		utility:   n.utility,
	}
	if n.domain != nil {
		cloned.domain = make([]Value, len(n.domain))
		copy(cloned.domain, n.domain)
	}
	if n.decided != nil {
		decided := *n.decided
		cloned.decided = &decided
	}
	return cloned
}

func (n *Node) addChild(name string) {
	for _, existing := range n.children {
		if existing == name {
			return
		}
	}
	n.children = append(n.children, name)
}

func (n *Node) removeChild(name string) {
	remaining := n.children[:0]
	for _, existing := range n.children {
		if existing != name {
			remaining = append(remaining, existing)
		}
	}
	n.children = remaining
}

func copyNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	copied := make([]string, len(names))
	copy(copied, names)
	return copied
}
