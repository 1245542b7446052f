package runtime

import (
	"errors"
	"fmt"
	rand "math/rand/v2"

	"github.com/lox/cfrsolve/internal/randutil"
	"github.com/lox/cfrsolve/sdk/game"
	"github.com/lox/cfrsolve/sdk/solver"
)

// Policy exposes read-only access to a solver blueprint for sampling actions
// during live play.
type Policy struct {
	blueprint *solver.Blueprint
	rng       *rand.Rand
}

// New wraps an in-memory blueprint. A zero seed draws one from the clock.
func New(bp *solver.Blueprint, seed int64) *Policy {
	return &Policy{blueprint: bp, rng: randutil.New(seed)}
}

// Load constructs a runtime policy from a stored blueprint file.
func Load(path string, seed int64) (*Policy, error) {
	bp, err := solver.LoadBlueprint(path)
	if err != nil {
		return nil, err
	}
	return New(bp, seed), nil
}

// Blueprint returns the underlying blueprint metadata (read-only).
func (p *Policy) Blueprint() *solver.Blueprint {
	if p == nil {
		return nil
	}
	return p.blueprint
}

// ActionWeights returns the stored distribution for the information set id,
// aligned with actions. Unknown information sets, and stored entries whose
// action set differs, fall back to uniform so a valid distribution is always
// returned.
func (p *Policy) ActionWeights(id string, actions []game.Action) ([]float64, error) {
	if p == nil || p.blueprint == nil {
		return nil, errors.New("nil policy")
	}
	if len(actions) == 0 {
		return nil, errors.New("action set must not be empty")
	}
	weights := p.blueprint.Profile().Distribution(id, actions)
	return append([]float64(nil), weights...), nil
}

// Sample draws an action for the decision at h in g.
func (p *Policy) Sample(g game.Game, h game.History) (game.Action, error) {
	if g.IsTerminal(h) || g.IsChance(h) {
		return "", fmt.Errorf("history %s is not a decision node", h.Key())
	}
	player := g.ActingPlayer(h)
	actions := g.LegalActions(h)
	weights, err := p.ActionWeights(g.InfoSetID(h, player), actions)
	if err != nil {
		return "", err
	}
	return actions[randutil.Choice(p.rng, weights)], nil
}

// Playout plays g from the root to a terminal history, sampling every player
// from the blueprint and chance from its outcome distribution.
func (p *Policy) Playout(g game.Game) (game.History, []float64, error) {
	h := game.Root()
	for !g.IsTerminal(h) {
		if g.IsChance(h) {
			outcomes := g.ChanceOutcomes(h)
			if len(outcomes) == 0 {
				return h, nil, fmt.Errorf("chance node %s has no outcomes", h.Key())
			}
			weights := make([]float64, len(outcomes))
			for i, o := range outcomes {
				weights[i] = o.Probability
			}
			h = h.Extend(outcomes[randutil.Choice(p.rng, weights)].Action)
			continue
		}
		a, err := p.Sample(g, h)
		if err != nil {
			return h, nil, err
		}
		h = h.Extend(a)
	}

	utilities := make([]float64, g.NumPlayers())
	for i := range utilities {
		utilities[i] = g.Utility(h, game.Player(i))
	}
	return h, utilities, nil
}
