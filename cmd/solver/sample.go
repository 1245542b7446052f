package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/lox/cfrsolve/sdk/game"
	"github.com/lox/cfrsolve/sdk/games"
	"github.com/lox/cfrsolve/sdk/solver/runtime"
)

type SampleCmd struct {
	Blueprint string `arg:"" help:"path to blueprint"`
	History   string `arg:"" optional:"" help:"comma separated actions from the root, e.g. 2,0,p (empty is the root)"`
	Game      string `help:"game the history belongs to (defaults to the blueprint's game)"`
	Count     int    `help:"number of actions to draw" default:"1"`
	Seed      int64  `help:"random seed; 0 uses time seed" default:"0"`
}

func (cmd *SampleCmd) Run() error {
	policy, err := runtime.Load(cmd.Blueprint, cmd.Seed)
	if err != nil {
		return fmt.Errorf("load blueprint: %w", err)
	}
	g, err := blueprintGame(policy.Blueprint(), cmd.Game)
	if err != nil {
		return err
	}

	h, err := parseHistory(g, cmd.History)
	if err != nil {
		return err
	}
	if g.IsTerminal(h) || g.IsChance(h) {
		return fmt.Errorf("history %s is not a decision node", h.Key())
	}

	player := g.ActingPlayer(h)
	id := g.InfoSetID(h, player)
	actions := g.LegalActions(h)
	weights, err := policy.ActionWeights(id, actions)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s acts at %s (infoset %s)\n", player, h.Key(), id)
	for i, a := range actions {
		fmt.Fprintf(os.Stdout, "  %-8s %.4f\n", a, weights[i])
	}
	for range max(cmd.Count, 0) {
		a, err := policy.Sample(g, h)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, a)
	}
	return nil
}

// parseHistory replays comma separated actions from the root, rejecting any
// action that is not available where it is played.
func parseHistory(g game.Game, s string) (game.History, error) {
	h := game.Root()
	if strings.TrimSpace(s) == "" {
		return h, nil
	}
	for _, part := range strings.Split(s, ",") {
		a := game.Action(strings.TrimSpace(part))
		if g.IsTerminal(h) {
			return nil, fmt.Errorf("history %s is already terminal", h.Key())
		}
		if !available(g, h, a) {
			return nil, fmt.Errorf("action %q is not available at %s", a, h.Key())
		}
		h = h.Extend(a)
	}
	return h, nil
}

func available(g game.Game, h game.History, a game.Action) bool {
	if g.IsChance(h) {
		for _, o := range g.ChanceOutcomes(h) {
			if o.Action == a {
				return true
			}
		}
		return false
	}
	for _, legal := range g.LegalActions(h) {
		if legal == a {
			return true
		}
	}
	return false
}

type GamesCmd struct{}

func (cmd *GamesCmd) Run() error {
	for _, name := range games.Names() {
		fmt.Fprintln(os.Stdout, name)
	}
	return nil
}
