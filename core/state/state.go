// Package state implements the live probabilistic state the planner and
// learner operate on: one network plus its accumulated evidence, with
// reduction between update cycles, fixpoint propagation over registered
// domain models and query delegation to the inference engine.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/adalundhe/volition/core/bayes"
	coreerrors "github.com/adalundhe/volition/core/errors"
	"github.com/adalundhe/volition/core/inference"
)

// ErrNotChanceNode reports a distribution install against a non-chance node.
var ErrNotChanceNode = errors.New("distribution requires a chance node")

// State owns one network and the evidence observed against it. Mutation is
// confined to one logical owner per copy: the live state belongs to the
// runtime, rollout clones to the planner branch that created them, so the
// state itself carries no locks.
type State struct {
	id       string
	network  *bayes.Network
	evidence bayes.Assignment
	engine   *inference.Engine
	cache    *QueryCache

	// Variables updated since the last reduction. They are exempt from
	// pruning for one round, because a registered model may still react
	// to them.
	newVars map[string]bool

	// Evidence-only nodes created because evidence arrived for a variable
	// the network did not know. Removed again when their evidence clears.
	injected map[string]bool

	version uint64
}

// New returns a state over the network with no query cache.
func New(network *bayes.Network, engine *inference.Engine) *State {
	return NewWithCache(network, engine, nil)
}

// NewWithCache returns a state whose queries read through the given cache.
// Every variable present at construction counts as new, so registered
// models react to the initial structure on the first propagation.
func NewWithCache(network *bayes.Network, engine *inference.Engine, cache *QueryCache) *State {
	newVars := map[string]bool{}
	for _, name := range network.Names() {
		newVars[name] = true
	}
	return &State{
		id:       uuid.NewString(),
		network:  network,
		evidence: bayes.NewAssignment(),
		engine:   engine,
		cache:    cache,
		newVars:  newVars,
		injected: map[string]bool{},
	}
}

// Network returns the underlying network. Callers mutating it directly are
// outside the state's version tracking.
func (s *State) Network() *bayes.Network {
	return s.network
}

// Evidence returns the accumulated evidence assignment.
func (s *State) Evidence() bayes.Assignment {
	return s.evidence
}

// Version returns the mutation counter. Every structural or evidential
// change bumps it, which keys cached query results.
func (s *State) Version() uint64 {
	return s.version
}

// ActionVariables returns the sorted names of undecided action nodes.
// Committed decisions have been converted to chance content and no longer
// appear here.
func (s *State) ActionVariables() []string {
	return s.network.ActionVariables()
}

// ChanceVariables returns the sorted chance node names.
func (s *State) ChanceVariables() []string {
	return s.network.ChanceVariables()
}

// ParameterVariables returns the sorted names of learnable parameter nodes.
func (s *State) ParameterVariables() []string {
	return s.network.ParameterVariables()
}

// PredictionVariables returns the sorted names carrying the prediction
// marker.
func (s *State) PredictionVariables() []string {
	return s.network.PredictionVariables()
}

// NewVariables returns the sorted variables updated since the last
// reduction.
func (s *State) NewVariables() []string {
	names := make([]string, 0, len(s.newVars))
	for name := range s.newVars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasNewVariables reports whether any variable awaits propagation.
func (s *State) HasNewVariables() bool {
	return len(s.newVars) > 0
}

// AddNode inserts a node into the network and marks its variable as new.
// Domain models grow the state through this during propagation.
func (s *State) AddNode(node *bayes.Node) error {
	if err := s.network.AddNode(node); err != nil {
		return err
	}
	s.newVars[node.Name()] = true
	s.version++
	return nil
}

// SetNode inserts the node, replacing any node already registered under the
// same name, and marks its variable as new. Models re-deriving a variable on
// every turn write through this so downstream models see the update.
func (s *State) SetNode(node *bayes.Node) error {
	if s.network.Has(node.Name()) {
		if err := s.network.ReplaceNode(node); err != nil {
			return err
		}
	} else if err := s.network.AddNode(node); err != nil {
		return err
	}
	delete(s.injected, node.Name())
	s.newVars[node.Name()] = true
	s.version++
	return nil
}

// AddEvidence records observed values against the state. Variables the
// network does not know become evidence-only deterministic chance nodes, so
// external evidence such as reward observations can arrive before any model
// has reacted to it.
func (s *State) AddEvidence(observed bayes.Assignment) {
	if observed.IsEmpty() {
		return
	}
	for _, name := range observed.Variables() {
		value, _ := observed.Get(name)
		if !s.network.Has(name) {
			node := bayes.NewChanceNode(name, nil, bayes.Deterministic(value))
			if err := s.network.AddNode(node); err != nil {
				slog.Warn("could not add evidence node",
					slog.String("variable", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			s.injected[name] = true
		}
		s.evidence = s.evidence.With(name, value)
		s.newVars[name] = true
	}
	s.version++
}

// ClearEvidence drops the listed evidence entries. Evidence-only nodes
// created for them are removed from the network as well.
func (s *State) ClearEvidence(variables ...string) {
	changed := false
	for _, name := range variables {
		if !s.evidence.Contains(name) {
			continue
		}
		s.evidence = s.evidence.Without(name)
		changed = true
		if s.injected[name] && s.network.Has(name) {
			if err := s.network.Remove(name); err == nil {
				delete(s.injected, name)
			}
		}
		delete(s.newVars, name)
	}
	if changed {
		s.version++
	}
}

// CommitDecision writes a decision into the live graph as deterministic
// content. Every action node matching a decided variable, at any prime
// depth, becomes an evidenced deterministic chance node, so later sampling
// fixes the committed value and the planner no longer sees the variable as
// an open decision. The stripped decision variables count as new, which
// lets transition models react to the commitment.
func (s *State) CommitDecision(decision bayes.Assignment) error {
	stripped := decision.StripPrimed()
	for _, name := range stripped.Variables() {
		value, _ := stripped.Get(name)

		for _, actionName := range s.network.ActionVariables() {
			if actionName == name || bayes.StripPrimes(actionName) != name {
				continue
			}
			replacement := bayes.NewChanceNode(actionName, nil, bayes.Deterministic(value))
			if err := s.network.ReplaceNode(replacement); err != nil {
				return fmt.Errorf("convert %s: %w", actionName, err)
			}
			s.evidence = s.evidence.With(actionName, value)
		}

		content := bayes.NewChanceNode(name, nil, bayes.Deterministic(value))
		if s.network.Has(name) {
			if err := s.network.ReplaceNode(content); err != nil {
				return fmt.Errorf("commit %s: %w", name, err)
			}
		} else if err := s.network.AddNode(content); err != nil {
			return fmt.Errorf("commit %s: %w", name, err)
		}
		s.evidence = s.evidence.With(name, value)
		s.newVars[name] = true
	}
	s.version++
	return nil
}

// Reduce prunes the state between update cycles and returns the eliminated
// variable names. Action, utility and prediction nodes that are no longer
// fresh belong to a consumed decision cycle and are dropped; evidenced
// chance variables whose whole downstream is likewise removable are
// eliminated together with their evidence. Variables updated since the last
// reduction are exempt for one round, because a model may still react to
// them. Reward-shaped evidence entries survive node elimination until the
// learner consumes them.
func (s *State) Reduce() []string {
	spared := s.newVars
	s.newVars = map[string]bool{}

	order, err := s.network.TopologicalOrder()
	if err != nil {
		slog.Warn("skipping state reduction", slog.String("error", err.Error()))
		return nil
	}

	// A node is removable only when everything below it is removable too,
	// so elimination never leaves a dangling parent reference.
	removable := make(map[string]bool, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if spared[name] {
			continue
		}
		node, ok := s.network.Node(name)
		if !ok {
			continue
		}
		clearBelow := true
		for _, child := range node.Children() {
			if !removable[child] {
				clearBelow = false
				break
			}
		}
		if !clearBelow {
			continue
		}
		switch node.Kind() {
		case bayes.ActionNode, bayes.UtilityNode:
			removable[name] = true
		case bayes.ChanceNode:
			// Parameter nodes persist across cycles as the learner's memory.
			if node.IsParameter() {
				continue
			}
			if s.evidence.Contains(name) || bayes.IsPrediction(name) {
				removable[name] = true
			}
		}
	}

	removed := make([]string, 0, len(removable))
	for _, name := range order {
		if !removable[name] {
			continue
		}
		if err := s.network.Remove(name); err != nil {
			continue
		}
		if !bayes.IsReward(name) {
			s.evidence = s.evidence.Without(name)
		}
		delete(s.injected, name)
		removed = append(removed, name)
	}
	if len(removed) > 0 {
		s.version++
	}
	return removed
}

// SetDistribution replaces the conditional distribution of a chance node.
// The learner installs re-estimated parameter posteriors through this.
func (s *State) SetDistribution(name string, distrib bayes.Distribution) error {
	node, ok := s.network.Node(name)
	if !ok {
		return fmt.Errorf("%w: %s", bayes.ErrUnknownNode, name)
	}
	if node.Kind() != bayes.ChanceNode {
		return fmt.Errorf("%w: %s is %s", ErrNotChanceNode, name, node.Kind())
	}
	node.SetDistrib(distrib)
	s.version++
	return nil
}

// Copy returns a deep structural clone with independent mutable state.
// Immutable distribution parameters stay shared by reference, and the copy
// reads through the same query cache under its own identity.
func (s *State) Copy() *State {
	newVars := make(map[string]bool, len(s.newVars))
	for name := range s.newVars {
		newVars[name] = true
	}
	injected := make(map[string]bool, len(s.injected))
	for name := range s.injected {
		injected[name] = true
	}
	return &State{
		id:       uuid.NewString(),
		network:  s.network.Copy(),
		evidence: s.evidence,
		engine:   s.engine,
		cache:    s.cache,
		newVars:  newVars,
		injected: injected,
		version:  s.version,
	}
}

// QueryProb estimates the joint distribution over the target variables
// under the state's evidence. An empty target set yields an empty table.
func (s *State) QueryProb(ctx context.Context, targets []string) (*bayes.ProbabilityTable, error) {
	if len(targets) == 0 {
		return bayes.NewProbabilityTable(), nil
	}
	key := s.queryKey("prob", targets)
	if s.cache != nil {
		if table, ok := s.cache.Prob(key); ok {
			return table, nil
		}
	}
	table, err := s.engine.QueryProb(ctx, s.network, targets, s.evidence)
	if err != nil {
		return nil, coreerrors.WrapWithDomain(coreerrors.DomainQuery, "probability query", err)
	}
	if s.cache != nil {
		s.cache.StoreProb(key, table)
	}
	return table, nil
}

// QueryUtil estimates expected utility per assignment over the target
// variables under the state's evidence.
func (s *State) QueryUtil(ctx context.Context, targets []string) (*bayes.UtilityTable, error) {
	if len(targets) == 0 {
		return bayes.NewUtilityTable(), nil
	}
	key := s.queryKey("util", targets)
	if s.cache != nil {
		if table, ok := s.cache.Util(key); ok {
			return table, nil
		}
	}
	table, err := s.engine.QueryUtil(ctx, s.network, targets, s.evidence)
	if err != nil {
		return nil, coreerrors.WrapWithDomain(coreerrors.DomainQuery, "utility query", err)
	}
	if s.cache != nil {
		s.cache.StoreUtil(key, table)
	}
	return table, nil
}

func (s *State) queryKey(kind string, targets []string) string {
	sorted := make([]string, len(targets))
	copy(sorted, targets)
	sort.Strings(sorted)
	return fmt.Sprintf("%s|%d|%s|%s|%s",
		s.id, s.version, kind, strings.Join(sorted, ","), s.evidence.String())
}
