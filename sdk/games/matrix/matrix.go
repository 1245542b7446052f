// Package matrix expresses normal-form games as extensive-form games.
//
// Players move in seat order but nobody observes earlier moves, so every
// player has a single information set and the game is equivalent to all
// players choosing simultaneously.
package matrix

import (
	"errors"
	"fmt"

	"github.com/lox/cfrsolve/sdk/game"
)

// PayoffFunc returns every player's payoff for a joint choice of action indices.
type PayoffFunc func(joint []int) []float64

// Game is a normal-form game.
type Game struct {
	name    string
	actions [][]game.Action
	payoff  PayoffFunc
}

var _ game.Game = (*Game)(nil)

// New builds a normal-form game. actions[i] lists player i's choices.
func New(name string, actions [][]game.Action, payoff PayoffFunc) (*Game, error) {
	if name == "" {
		return nil, errors.New("game name is required")
	}
	if len(actions) == 0 {
		return nil, errors.New("at least one player is required")
	}
	for i, set := range actions {
		if len(set) == 0 {
			return nil, fmt.Errorf("player %d has no actions", i)
		}
	}
	if payoff == nil {
		return nil, errors.New("payoff function is required")
	}
	return &Game{name: name, actions: actions, payoff: payoff}, nil
}

// MatchingPennies returns the zero-sum game where player 0 wins a coin when
// both coins show the same face. Its unique equilibrium mixes 50/50.
func MatchingPennies() *Game {
	faces := []game.Action{"H", "T"}
	g, _ := New("matching-pennies", [][]game.Action{faces, faces}, func(joint []int) []float64 {
		if joint[0] == joint[1] {
			return []float64{1, -1}
		}
		return []float64{-1, 1}
	})
	return g
}

// RockPaperScissors returns the classic zero-sum game with a uniform equilibrium.
func RockPaperScissors() *Game {
	throws := []game.Action{"R", "P", "S"}
	g, _ := New("rps", [][]game.Action{throws, throws}, func(joint []int) []float64 {
		switch (joint[0] - joint[1] + 3) % 3 {
		case 0:
			return []float64{0, 0}
		case 1:
			return []float64{1, -1}
		default:
			return []float64{-1, 1}
		}
	})
	return g
}

// Decision returns a one-player game with a single choice among actions, each
// paying the corresponding utility.
func Decision(name string, actions []game.Action, utilities []float64) (*Game, error) {
	if len(actions) != len(utilities) {
		return nil, fmt.Errorf("got %d actions but %d utilities", len(actions), len(utilities))
	}
	values := append([]float64(nil), utilities...)
	return New(name, [][]game.Action{actions}, func(joint []int) []float64 {
		return []float64{values[joint[0]]}
	})
}

// Name implements game.Game.
func (g *Game) Name() string { return g.name }

// NumPlayers implements game.Game.
func (g *Game) NumPlayers() int { return len(g.actions) }

// IsTerminal implements game.Game.
func (g *Game) IsTerminal(h game.History) bool { return len(h) >= len(g.actions) }

// IsChance implements game.Game. Matrix games have no chance nodes.
func (g *Game) IsChance(game.History) bool { return false }

// ChanceOutcomes implements game.Game.
func (g *Game) ChanceOutcomes(game.History) []game.Outcome { return nil }

// ActingPlayer implements game.Game.
func (g *Game) ActingPlayer(h game.History) game.Player { return game.Player(len(h)) }

// LegalActions implements game.Game.
func (g *Game) LegalActions(h game.History) []game.Action { return g.actions[len(h)] }

// InfoSetID implements game.Game.
func (g *Game) InfoSetID(_ game.History, p game.Player) string {
	return fmt.Sprintf("%s:%d", g.name, p)
}

// Utility implements game.Game.
func (g *Game) Utility(h game.History, p game.Player) float64 {
	joint := make([]int, len(g.actions))
	for seat, a := range h {
		joint[seat] = indexOf(g.actions[seat], a)
	}
	return g.payoff(joint)[p]
}

func indexOf(set []game.Action, a game.Action) int {
	for i, v := range set {
		if v == a {
			return i
		}
	}
	return -1
}
