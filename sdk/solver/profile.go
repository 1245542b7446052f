package solver

import (
	"sort"

	"github.com/lox/cfrsolve/sdk/game"
)

// InfoSetPolicy is a distribution over the ordered actions of one information
// set.
type InfoSetPolicy struct {
	Player        game.Player   `json:"player"`
	Actions       []game.Action `json:"actions"`
	Probabilities []float64     `json:"probabilities"`
}

// Probability returns the weight assigned to action, or zero when the action
// is unknown.
func (p InfoSetPolicy) Probability(action game.Action) float64 {
	for i, a := range p.Actions {
		if a == action {
			return p.Probabilities[i]
		}
	}
	return 0
}

// Profile is a strategy profile keyed by information-set identifier.
type Profile map[string]InfoSetPolicy

// Distribution returns the probabilities recorded for id, aligned with actions.
// Information sets missing from the profile, or recorded with a different
// action set, play uniformly.
func (p Profile) Distribution(id string, actions []game.Action) []float64 {
	if pol, ok := p[id]; ok && len(pol.Actions) == len(actions) && len(pol.Probabilities) == len(actions) {
		match := true
		for i, a := range actions {
			if pol.Actions[i] != a {
				match = false
				break
			}
		}
		if match {
			return pol.Probabilities
		}
	}
	return uniform(len(actions))
}

// IDs returns the profile's information-set identifiers in sorted order.
func (p Profile) IDs() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func profileFrom(table *InfoSetTable, strategy func(*InfoSet) []float64) Profile {
	entries := table.Entries()
	out := make(Profile, len(entries))
	for _, e := range entries {
		out[e.ID] = InfoSetPolicy{
			Player:        e.Player,
			Actions:       append([]game.Action(nil), e.Actions...),
			Probabilities: strategy(e),
		}
	}
	return out
}

func uniform(n int) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	v := 1.0 / float64(n)
	for i := range out {
		out[i] = v
	}
	return out
}
