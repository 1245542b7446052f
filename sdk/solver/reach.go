package solver

import "github.com/lox/cfrsolve/sdk/game"

// MaxPlayers bounds the number of decision players a game may have.
const MaxPlayers = 8

const chanceSlot = MaxPlayers

// Reach holds each player's contribution to the probability of reaching a
// history, with a final slot for chance. It is a value type: updating one
// slot for a child never disturbs the parent's copy.
type Reach [MaxPlayers + 1]float64

// rootReach returns the reach vector at the root: every slot is one.
func rootReach() Reach {
	var r Reach
	for i := range r {
		r[i] = 1
	}
	return r
}

func slot(p game.Player) int {
	if p == game.Chance {
		return chanceSlot
	}
	return int(p)
}

// Of returns p's own reach contribution.
func (r Reach) Of(p game.Player) float64 { return r[slot(p)] }

// Scale returns a copy with p's contribution multiplied by f.
func (r Reach) Scale(p game.Player, f float64) Reach {
	r[slot(p)] *= f
	return r
}

// Excluding returns the counterfactual reach for p: the product of every other
// player's contribution, chance included.
func (r Reach) Excluding(p game.Player, players int) float64 {
	out := r[chanceSlot]
	for i := 0; i < players; i++ {
		if i == int(p) {
			continue
		}
		out *= r[i]
	}
	return out
}
