package solver

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru"

	"github.com/lox/cfrsolve/sdk/game"
)

const chanceTolerance = 1e-9

// contractChecker validates a game's answers as the engine consumes them.
// Shape checks (empty action sets, non-finite utilities, broken chance
// distributions) always run. When a cache is configured it additionally
// remembers the acting player reported for recently seen histories and flags
// any later disagreement.
type contractChecker struct {
	game    game.Game
	players int
	seen    *lru.Cache
}

func newContractChecker(g game.Game, cacheSize int) (*contractChecker, error) {
	c := &contractChecker{game: g, players: g.NumPlayers()}
	if cacheSize > 0 {
		cache, err := lru.New(cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create contract cache: %w", err)
		}
		c.seen = cache
	}
	return c, nil
}

func (c *contractChecker) utility(h game.History, p game.Player) (float64, error) {
	u := c.game.Utility(h, p)
	if math.IsNaN(u) || math.IsInf(u, 0) {
		return 0, malformed(h, "terminal utility for %s is %v", p, u)
	}
	return u, nil
}

func (c *contractChecker) chanceOutcomes(h game.History) ([]game.Outcome, error) {
	outcomes := c.game.ChanceOutcomes(h)
	if len(outcomes) == 0 {
		return nil, malformed(h, "chance node has no outcomes")
	}
	total := 0.0
	for _, o := range outcomes {
		if o.Probability < 0 || math.IsNaN(o.Probability) || math.IsInf(o.Probability, 0) {
			return nil, malformed(h, "chance outcome %q has probability %v", o.Action, o.Probability)
		}
		total += o.Probability
	}
	if math.Abs(total-1) > chanceTolerance {
		return nil, malformed(h, "chance probabilities sum to %v", total)
	}
	return outcomes, nil
}

func (c *contractChecker) actingPlayer(h game.History) (game.Player, error) {
	p := c.game.ActingPlayer(h)
	if p < 0 || int(p) >= c.players {
		return p, malformed(h, "acting player %d outside [0,%d)", p, c.players)
	}
	if c.seen == nil {
		return p, nil
	}
	key := h.Key()
	if prev, ok := c.seen.Get(key); ok {
		if prev.(game.Player) != p {
			return p, violation("", h, "acting player changed from %s to %s", prev.(game.Player), p)
		}
		return p, nil
	}
	c.seen.Add(key, p)
	return p, nil
}

func (c *contractChecker) legalActions(h game.History) ([]game.Action, error) {
	actions := c.game.LegalActions(h)
	if len(actions) == 0 {
		return nil, malformed(h, "decision node has no legal actions")
	}
	return actions, nil
}
