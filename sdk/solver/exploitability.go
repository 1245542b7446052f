package solver

import (
	"fmt"

	"github.com/lox/cfrsolve/sdk/game"
)

// The evaluators below recurse on the native stack. They are diagnostics run
// between iterations on games the solver already traverses in full, so depth
// is bounded by the same trees the engine walks.

// ExpectedValues returns every player's expected utility when all players
// follow profile.
func ExpectedValues(g game.Game, profile Profile) ([]float64, error) {
	check, err := newContractChecker(g, 0)
	if err != nil {
		return nil, err
	}
	return expectedValues(check, profile, game.Root())
}

func expectedValues(check *contractChecker, profile Profile, h game.History) ([]float64, error) {
	g := check.game
	n := check.players
	if g.IsTerminal(h) {
		out := make([]float64, n)
		for p := 0; p < n; p++ {
			u, err := check.utility(h, game.Player(p))
			if err != nil {
				return nil, err
			}
			out[p] = u
		}
		return out, nil
	}

	var actions []game.Action
	var probs []float64
	if g.IsChance(h) {
		outcomes, err := check.chanceOutcomes(h)
		if err != nil {
			return nil, err
		}
		actions = make([]game.Action, len(outcomes))
		probs = make([]float64, len(outcomes))
		for i, o := range outcomes {
			actions[i], probs[i] = o.Action, o.Probability
		}
	} else {
		p, err := check.actingPlayer(h)
		if err != nil {
			return nil, err
		}
		if actions, err = check.legalActions(h); err != nil {
			return nil, err
		}
		probs = profile.Distribution(g.InfoSetID(h, p), actions)
	}

	out := make([]float64, n)
	for i, a := range actions {
		if probs[i] == 0 {
			continue
		}
		child, err := expectedValues(check, profile, h.Extend(a))
		if err != nil {
			return nil, err
		}
		for p := range out {
			out[p] += probs[i] * child[p]
		}
	}
	return out, nil
}

type weightedHistory struct {
	history game.History
	reach   float64
}

// bestResponse computes a best response for one player against a fixed
// profile of the others. Every information set of the responder picks the
// action maximising the counterfactual-reach weighted value over its
// histories, which assumes perfect recall.
type bestResponse struct {
	check    *contractChecker
	profile  Profile
	player   game.Player
	infosets map[string][]weightedHistory
	values   map[string]float64
	choices  map[string]int
}

// BestResponseValue returns the expected utility player obtains by best
// responding to profile.
func BestResponseValue(g game.Game, profile Profile, player game.Player) (float64, error) {
	if int(player) < 0 || int(player) >= g.NumPlayers() {
		return 0, fmt.Errorf("player %d outside [0,%d)", player, g.NumPlayers())
	}
	check, err := newContractChecker(g, 0)
	if err != nil {
		return 0, err
	}
	br := &bestResponse{
		check:    check,
		profile:  profile,
		player:   player,
		infosets: make(map[string][]weightedHistory),
		values:   make(map[string]float64),
		choices:  make(map[string]int),
	}
	if err := br.collect(game.Root(), 1); err != nil {
		return 0, err
	}
	return br.value(game.Root())
}

// collect records the responder's histories grouped by information set with
// the probability that chance and the other players reach them.
func (b *bestResponse) collect(h game.History, reach float64) error {
	g := b.check.game
	if g.IsTerminal(h) {
		return nil
	}
	if g.IsChance(h) {
		outcomes, err := b.check.chanceOutcomes(h)
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			if err := b.collect(h.Extend(o.Action), reach*o.Probability); err != nil {
				return err
			}
		}
		return nil
	}

	p, err := b.check.actingPlayer(h)
	if err != nil {
		return err
	}
	actions, err := b.check.legalActions(h)
	if err != nil {
		return err
	}
	id := g.InfoSetID(h, p)
	if p == b.player {
		b.infosets[id] = append(b.infosets[id], weightedHistory{history: h, reach: reach})
		for _, a := range actions {
			if err := b.collect(h.Extend(a), reach); err != nil {
				return err
			}
		}
		return nil
	}
	probs := b.profile.Distribution(id, actions)
	for i, a := range actions {
		if err := b.collect(h.Extend(a), reach*probs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (b *bestResponse) value(h game.History) (float64, error) {
	key := h.Key()
	if v, ok := b.values[key]; ok {
		return v, nil
	}

	g := b.check.game
	var v float64
	switch {
	case g.IsTerminal(h):
		u, err := b.check.utility(h, b.player)
		if err != nil {
			return 0, err
		}
		v = u

	case g.IsChance(h):
		outcomes, err := b.check.chanceOutcomes(h)
		if err != nil {
			return 0, err
		}
		for _, o := range outcomes {
			cv, err := b.value(h.Extend(o.Action))
			if err != nil {
				return 0, err
			}
			v += o.Probability * cv
		}

	default:
		p, err := b.check.actingPlayer(h)
		if err != nil {
			return 0, err
		}
		actions, err := b.check.legalActions(h)
		if err != nil {
			return 0, err
		}
		id := g.InfoSetID(h, p)
		if p == b.player {
			idx, err := b.choose(id, actions)
			if err != nil {
				return 0, err
			}
			if v, err = b.value(h.Extend(actions[idx])); err != nil {
				return 0, err
			}
			break
		}
		probs := b.profile.Distribution(id, actions)
		for i, a := range actions {
			if probs[i] == 0 {
				continue
			}
			cv, err := b.value(h.Extend(a))
			if err != nil {
				return 0, err
			}
			v += probs[i] * cv
		}
	}

	b.values[key] = v
	return v, nil
}

// choose returns the index of the responder's best action at information set
// id. Ties resolve to the first action.
func (b *bestResponse) choose(id string, actions []game.Action) (int, error) {
	if idx, ok := b.choices[id]; ok {
		return idx, nil
	}
	best, bestValue := 0, 0.0
	for i, a := range actions {
		total := 0.0
		for _, wh := range b.infosets[id] {
			cv, err := b.value(wh.history.Extend(a))
			if err != nil {
				return 0, err
			}
			total += wh.reach * cv
		}
		if i == 0 || total > bestValue {
			best, bestValue = i, total
		}
	}
	b.choices[id] = best
	return best, nil
}

// NashConv sums, over all players, how much each could gain by deviating
// unilaterally from profile. It is zero exactly at a Nash equilibrium.
func NashConv(g game.Game, profile Profile) (float64, error) {
	values, err := ExpectedValues(g, profile)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for p := 0; p < g.NumPlayers(); p++ {
		br, err := BestResponseValue(g, profile, game.Player(p))
		if err != nil {
			return 0, err
		}
		total += br - values[p]
	}
	return total, nil
}

// Exploitability is NashConv averaged over the players. For two-player
// zero-sum games it equals the mean best-response value against profile.
func Exploitability(g game.Game, profile Profile) (float64, error) {
	nc, err := NashConv(g, profile)
	if err != nil {
		return 0, err
	}
	return nc / float64(g.NumPlayers()), nil
}
