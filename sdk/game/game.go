// Package game defines the contract a game model must satisfy to be solved by
// the CFR engine. Models are queried over histories and must be deterministic:
// asking the same question about the same history always yields the same answer.
package game

import (
	"strconv"
	"strings"
)

// Player identifies a seat in the game. Decision players are numbered from 0;
// Chance is the pseudo-player that draws chance outcomes.
type Player int

// Chance is the distinguished pseudo-player acting at chance nodes.
const Chance Player = -1

func (p Player) String() string {
	if p == Chance {
		return "chance"
	}
	return "P" + strconv.Itoa(int(p))
}

// Action is an opaque label for a move or chance outcome. Labels only need to be
// unique among the children of a single history.
type Action string

// Outcome pairs a chance action with the probability of it being drawn.
type Outcome struct {
	Action      Action
	Probability float64
}

// History is the ordered sequence of actions taken from the root. Histories are
// treated as immutable; Extend always returns a fresh slice.
type History []Action

// Extend returns a new history with a appended. The receiver is left untouched,
// so siblings never share backing storage.
func (h History) Extend(a Action) History {
	next := make(History, len(h)+1)
	copy(next, h)
	next[len(h)] = a
	return next
}

// Len returns the number of actions in the history.
func (h History) Len() int { return len(h) }

// Key renders the history as a stable string, mostly useful for diagnostics and
// memoisation.
func (h History) Key() string {
	if len(h) == 0 {
		return "<root>"
	}
	var sb strings.Builder
	for i, a := range h {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(string(a))
	}
	return sb.String()
}

func (h History) String() string { return h.Key() }

// Game is the capability set the solver consumes.
//
// For every history exactly one of the following holds: it is terminal, it is
// a chance node, or some player acts at it. InfoSetID must map histories the
// acting player cannot tell apart to the same identifier, and all histories
// sharing an identifier must present the same legal actions in the same order.
type Game interface {
	// Name identifies the model in checkpoints and blueprints.
	Name() string
	// NumPlayers returns the number of decision players (chance excluded).
	NumPlayers() int

	IsTerminal(h History) bool
	// Utility returns the payoff for p at a terminal history.
	Utility(h History, p Player) float64

	IsChance(h History) bool
	// ChanceOutcomes returns the outcome distribution at a chance history.
	ChanceOutcomes(h History) []Outcome

	// ActingPlayer returns the player to move at a decision history.
	ActingPlayer(h History) Player
	// LegalActions returns the ordered action set at a decision history.
	LegalActions(h History) []Action
	// InfoSetID returns the identifier of p's information set at h.
	InfoSetID(h History, p Player) string
}

// Root is the empty history every traversal starts from.
func Root() History { return History{} }
