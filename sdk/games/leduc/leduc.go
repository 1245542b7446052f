// Package leduc implements two-player Leduc hold'em.
//
// The deck holds two Jacks, two Queens and two Kings. Both players ante one
// chip and receive a private card. A betting round with a fixed raise of two
// chips follows, then one public card is revealed and a second round with a
// raise of four chips is played. At most two raises are allowed per round.
// At showdown a player pairing the public card wins, otherwise the higher
// private card wins; equal ranks split the pot.
package leduc

import (
	"strconv"
	"strings"

	"github.com/lox/cfrsolve/sdk/game"
)

const (
	Fold  game.Action = "f"
	Call  game.Action = "c"
	Raise game.Action = "r"
)

const (
	numPlayers       = 2
	maxRaisesInRound = 2
	copiesPerRank    = 2
)

var ranks = []game.Action{"J", "Q", "K"}

var raiseSize = [2]int{2, 4}

// Game is the Leduc hold'em model. It carries no state and is safe for
// concurrent use.
type Game struct{}

var _ game.Game = Game{}

// New returns a Leduc hold'em model.
func New() Game { return Game{} }

// Name implements game.Game.
func (Game) Name() string { return "leduc" }

// NumPlayers implements game.Game.
func (Game) NumPlayers() int { return numPlayers }

type stage uint8

const (
	stageDeal stage = iota
	stageBet
	stagePublic
	stageDone
)

// state is the replayed view of a history.
type state struct {
	stage   stage
	private [numPlayers]game.Action
	dealt   int
	public  game.Action
	round   int
	rounds  [2]game.History
	contrib [numPlayers]int
	folded  game.Player
}

func replay(h game.History) state {
	s := state{folded: -1}
	s.contrib = [numPlayers]int{1, 1}

	for _, a := range h {
		switch s.stage {
		case stageDeal:
			s.private[s.dealt] = a
			s.dealt++
			if s.dealt == numPlayers {
				s.stage = stageBet
			}
		case stagePublic:
			s.public = a
			s.round = 1
			s.stage = stageBet
		case stageBet:
			s.applyBet(a)
		case stageDone:
			return s
		}
	}
	return s
}

func (s *state) applyBet(a game.Action) {
	seat := len(s.rounds[s.round]) % numPlayers
	other := 1 - seat
	switch a {
	case Fold:
		s.folded = game.Player(seat)
		s.stage = stageDone
	case Call:
		s.contrib[seat] = s.contrib[other]
	case Raise:
		s.contrib[seat] = s.contrib[other] + raiseSize[s.round]
	}
	s.rounds[s.round] = append(s.rounds[s.round], a)
	if s.stage == stageDone {
		return
	}

	actions := s.rounds[s.round]
	if a == Call && len(actions) >= 2 {
		if s.round == 0 {
			s.stage = stagePublic
		} else {
			s.stage = stageDone
		}
	}
}

func (s *state) raises() int {
	n := 0
	for _, a := range s.rounds[s.round] {
		if a == Raise {
			n++
		}
	}
	return n
}

func (s *state) facingBet() bool {
	actions := s.rounds[s.round]
	return len(actions) > 0 && actions[len(actions)-1] == Raise
}

// IsTerminal implements game.Game.
func (Game) IsTerminal(h game.History) bool {
	return replay(h).stage == stageDone
}

// IsChance implements game.Game.
func (Game) IsChance(h game.History) bool {
	st := replay(h).stage
	return st == stageDeal || st == stagePublic
}

// ChanceOutcomes implements game.Game. Outcomes are ranks weighted by the
// number of copies left in the deck; suits carry no strategic information.
func (Game) ChanceOutcomes(h game.History) []game.Outcome {
	s := replay(h)
	left := map[game.Action]int{}
	for _, r := range ranks {
		left[r] = copiesPerRank
	}
	for i := 0; i < s.dealt; i++ {
		left[s.private[i]]--
	}
	if s.public != "" {
		left[s.public]--
	}

	total := 0
	for _, n := range left {
		total += n
	}
	out := make([]game.Outcome, 0, len(ranks))
	for _, r := range ranks {
		if left[r] == 0 {
			continue
		}
		out = append(out, game.Outcome{Action: r, Probability: float64(left[r]) / float64(total)})
	}
	return out
}

// ActingPlayer implements game.Game.
func (Game) ActingPlayer(h game.History) game.Player {
	s := replay(h)
	return game.Player(len(s.rounds[s.round]) % numPlayers)
}

// LegalActions implements game.Game.
func (Game) LegalActions(h game.History) []game.Action {
	s := replay(h)
	out := make([]game.Action, 0, 3)
	if s.facingBet() {
		out = append(out, Fold)
	}
	out = append(out, Call)
	if s.raises() < maxRaisesInRound {
		out = append(out, Raise)
	}
	return out
}

// InfoSetID implements game.Game. A player sees their private rank, the public
// rank once revealed and both betting rounds.
func (Game) InfoSetID(h game.History, p game.Player) string {
	s := replay(h)
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(int(p)))
	sb.WriteByte(':')
	if int(p) < s.dealt {
		sb.WriteString(string(s.private[p]))
	}
	sb.WriteByte(':')
	sb.WriteString(string(s.public))
	sb.WriteByte(':')
	for _, a := range s.rounds[0] {
		sb.WriteString(string(a))
	}
	if s.round == 1 {
		sb.WriteByte('|')
		for _, a := range s.rounds[1] {
			sb.WriteString(string(a))
		}
	}
	return sb.String()
}

// Utility implements game.Game.
func (Game) Utility(h game.History, p game.Player) float64 {
	s := replay(h)
	other := 1 - int(p)

	if s.folded >= 0 {
		if s.folded == p {
			return float64(-s.contrib[p])
		}
		return float64(s.contrib[other])
	}

	mine := strength(s.private[p], s.public)
	theirs := strength(s.private[other], s.public)
	switch {
	case mine > theirs:
		return float64(s.contrib[other])
	case mine < theirs:
		return float64(-s.contrib[p])
	default:
		return 0
	}
}

func strength(card, public game.Action) int {
	v := 0
	for i, r := range ranks {
		if r == card {
			v = i
		}
	}
	if card == public {
		return 10 + v
	}
	return v
}
