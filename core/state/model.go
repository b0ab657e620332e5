package state

import (
	"context"
	"fmt"
	"log/slog"
)

// MaxPropagationRounds bounds the update fixpoint so a model pair that
// keeps re-triggering each other cannot spin the runtime forever.
const MaxPropagationRounds = 100

// Model is the contract for domain knowledge that reacts to state updates.
// A model declares which variable updates it listens for, and applies its
// reaction by growing or reshaping the state: adding nodes, attaching
// distributions, recording evidence.
type Model interface {
	// Triggers reports whether any of the updated variables is one the
	// model listens for.
	Triggers(updated []string) bool

	// Apply reacts to the updated variables against the state. Changes the
	// model makes are picked up by the next propagation round.
	Apply(ctx context.Context, st *State, updated []string) error
}

// Propagate drives the state to quiescence: while variables are marked new,
// it reduces the state and lets every triggered model react, repeating
// until no model produces further updates. Reduction runs first so models
// always see a pruned graph, with the fresh variables spared.
func Propagate(ctx context.Context, st *State, models []Model) error {
	for round := 0; st.HasNewVariables(); round++ {
		if round >= MaxPropagationRounds {
			slog.Warn("state propagation did not quiesce",
				slog.Int("rounds", round),
				slog.Any("pending", st.NewVariables()),
			)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		updated := st.NewVariables()
		st.Reduce()
		for _, model := range models {
			if !model.Triggers(updated) {
				continue
			}
			if err := model.Apply(ctx, st, updated); err != nil {
				return fmt.Errorf("apply model: %w", err)
			}
		}
	}
	return nil
}
