// Package kuhn implements N-player Kuhn poker.
//
// The deck holds N+1 ranked cards and every player is dealt one. Each player
// antes one chip, then a single betting round follows in seat order: a player
// may pass ("p") or bet one chip ("b"). Once someone bets, every other player
// acts exactly once more, calling ("b") or folding ("p"). The highest card among
// the players still in the hand wins the pot.
package kuhn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lox/cfrsolve/sdk/game"
)

const (
	Pass game.Action = "p"
	Bet  game.Action = "b"
)

var actions = []game.Action{Pass, Bet}

// Game is a Kuhn poker model for a fixed number of players.
type Game struct {
	players int
}

var _ game.Game = (*Game)(nil)

// New returns a Kuhn poker model for the given number of players.
func New(players int) (*Game, error) {
	if players < 2 {
		return nil, fmt.Errorf("kuhn poker needs at least 2 players, got %d", players)
	}
	return &Game{players: players}, nil
}

// Name implements game.Game.
func (g *Game) Name() string {
	if g.players == 2 {
		return "kuhn"
	}
	return fmt.Sprintf("kuhn-%dp", g.players)
}

// NumPlayers implements game.Game.
func (g *Game) NumPlayers() int { return g.players }

// split separates the deal from the betting sequence.
func (g *Game) split(h game.History) (deal, betting game.History) {
	if len(h) <= g.players {
		return h, nil
	}
	return h[:g.players], h[g.players:]
}

// firstBet returns the index of the opening bet or -1.
func firstBet(betting game.History) int {
	for i, a := range betting {
		if a == Bet {
			return i
		}
	}
	return -1
}

// IsTerminal implements game.Game.
func (g *Game) IsTerminal(h game.History) bool {
	_, betting := g.split(h)
	if len(h) < g.players {
		return false
	}
	if opened := firstBet(betting); opened >= 0 {
		return len(betting) == opened+g.players
	}
	return len(betting) == g.players
}

// IsChance implements game.Game.
func (g *Game) IsChance(h game.History) bool {
	return len(h) < g.players
}

// ChanceOutcomes implements game.Game. Cards are dealt one player at a time,
// uniformly from those not yet dealt.
func (g *Game) ChanceOutcomes(h game.History) []game.Outcome {
	dealt := make(map[game.Action]struct{}, len(h))
	for _, a := range h {
		dealt[a] = struct{}{}
	}
	remaining := g.players + 1 - len(h)
	out := make([]game.Outcome, 0, remaining)
	for c := 0; c <= g.players; c++ {
		card := cardAction(c)
		if _, ok := dealt[card]; ok {
			continue
		}
		out = append(out, game.Outcome{Action: card, Probability: 1 / float64(remaining)})
	}
	return out
}

// ActingPlayer implements game.Game.
func (g *Game) ActingPlayer(h game.History) game.Player {
	_, betting := g.split(h)
	return game.Player(len(betting) % g.players)
}

// LegalActions implements game.Game.
func (g *Game) LegalActions(game.History) []game.Action {
	return actions
}

// InfoSetID implements game.Game. A player observes their own card and the
// public betting sequence.
func (g *Game) InfoSetID(h game.History, p game.Player) string {
	deal, betting := g.split(h)
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(int(p)))
	sb.WriteByte(':')
	if int(p) < len(deal) {
		sb.WriteString(string(deal[p]))
	}
	sb.WriteByte(':')
	for _, a := range betting {
		sb.WriteString(string(a))
	}
	return sb.String()
}

// Utility implements game.Game.
func (g *Game) Utility(h game.History, p game.Player) float64 {
	deal, betting := g.split(h)

	contrib := make([]int, g.players)
	inHand := make([]bool, g.players)
	for i := range contrib {
		contrib[i] = 1
	}

	opened := firstBet(betting)
	if opened < 0 {
		for i := range inHand {
			inHand[i] = true
		}
	} else {
		for i := opened; i < len(betting); i++ {
			seat := i % g.players
			if betting[i] == Bet {
				contrib[seat]++
				inHand[seat] = true
			}
		}
	}

	pot := 0
	for _, c := range contrib {
		pot += c
	}

	winner, best := -1, -1
	for seat, ok := range inHand {
		if !ok {
			continue
		}
		if card := cardValue(deal[seat]); card > best {
			winner, best = seat, card
		}
	}

	if int(p) == winner {
		return float64(pot - contrib[p])
	}
	return float64(-contrib[p])
}

func cardAction(c int) game.Action {
	return game.Action(strconv.Itoa(c))
}

func cardValue(a game.Action) int {
	v, err := strconv.Atoi(string(a))
	if err != nil {
		return -1
	}
	return v
}
