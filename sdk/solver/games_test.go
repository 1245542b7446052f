package solver

import (
	"math"
	"sync"

	"github.com/lox/cfrsolve/sdk/game"
)

// scripted is a small two-player zero-sum game used to check update rules by
// hand. Chance picks L (1/4) or R (3/4); player 0 sees it and picks x or y;
// player 1 sees nothing and picks u or v.
type scripted struct{}

var scriptedPayoff = map[string]float64{
	"L/x/u": 1, "L/x/v": -1, "L/y/u": 0, "L/y/v": 2,
	"R/x/u": 2, "R/x/v": 0, "R/y/u": -3, "R/y/v": 1,
}

func (scripted) Name() string    { return "scripted" }
func (scripted) NumPlayers() int { return 2 }

func (scripted) IsTerminal(h game.History) bool { return len(h) == 3 }
func (scripted) IsChance(h game.History) bool   { return len(h) == 0 }

func (scripted) Utility(h game.History, p game.Player) float64 {
	u := scriptedPayoff[h.Key()]
	if p == 1 {
		return -u
	}
	return u
}

func (scripted) ChanceOutcomes(game.History) []game.Outcome {
	return []game.Outcome{{Action: "L", Probability: 0.25}, {Action: "R", Probability: 0.75}}
}

func (scripted) ActingPlayer(h game.History) game.Player { return game.Player(len(h) - 1) }

func (scripted) LegalActions(h game.History) []game.Action {
	if len(h) == 1 {
		return []game.Action{"x", "y"}
	}
	return []game.Action{"u", "v"}
}

func (scripted) InfoSetID(h game.History, p game.Player) string {
	if p == 0 {
		return "0:" + string(h[0])
	}
	return "1"
}

// faulty wraps a game and lets tests override individual answers.
type faulty struct {
	game.Game
	utility  func(h game.History, p game.Player) float64
	chance   func(h game.History) []game.Outcome
	actions  func(h game.History) []game.Action
	acting   func(h game.History) game.Player
	infoSets func(h game.History, p game.Player) string
}

func (f faulty) Utility(h game.History, p game.Player) float64 {
	if f.utility != nil {
		return f.utility(h, p)
	}
	return f.Game.Utility(h, p)
}

func (f faulty) ChanceOutcomes(h game.History) []game.Outcome {
	if f.chance != nil {
		return f.chance(h)
	}
	return f.Game.ChanceOutcomes(h)
}

func (f faulty) LegalActions(h game.History) []game.Action {
	if f.actions != nil {
		return f.actions(h)
	}
	return f.Game.LegalActions(h)
}

func (f faulty) ActingPlayer(h game.History) game.Player {
	if f.acting != nil {
		return f.acting(h)
	}
	return f.Game.ActingPlayer(h)
}

func (f faulty) InfoSetID(h game.History, p game.Player) string {
	if f.infoSets != nil {
		return f.infoSets(h, p)
	}
	return f.Game.InfoSetID(h, p)
}

// reversed presents every action set in reverse order.
type reversed struct {
	game.Game
}

func (r reversed) LegalActions(h game.History) []game.Action {
	in := r.Game.LegalActions(h)
	out := make([]game.Action, len(in))
	for i, a := range in {
		out[len(in)-1-i] = a
	}
	return out
}

// chain is a one-player game of a fixed depth with a single action per node.
type chain struct {
	depth int
}

func (c chain) Name() string                               { return "chain" }
func (c chain) NumPlayers() int                            { return 1 }
func (c chain) IsTerminal(h game.History) bool             { return len(h) == c.depth }
func (c chain) Utility(game.History, game.Player) float64  { return 1 }
func (c chain) IsChance(game.History) bool                 { return false }
func (c chain) ChanceOutcomes(game.History) []game.Outcome { return nil }
func (c chain) ActingPlayer(game.History) game.Player      { return 0 }
func (c chain) LegalActions(game.History) []game.Action    { return []game.Action{"n"} }
func (c chain) InfoSetID(game.History, game.Player) string { return "chain" }

// flipping answers the first acting-player query for a history truthfully and
// names the other player on every later query.
func flipping(g game.Game) faulty {
	var seen sync.Map
	return faulty{
		Game: g,
		acting: func(h game.History) game.Player {
			p := g.ActingPlayer(h)
			if _, loaded := seen.LoadOrStore(h.Key(), true); loaded {
				return 1 - p
			}
			return p
		},
	}
}

func nanUtility(g game.Game) faulty {
	return faulty{Game: g, utility: func(game.History, game.Player) float64 { return math.NaN() }}
}
