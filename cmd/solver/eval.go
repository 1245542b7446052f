package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/cfrsolve/sdk/game"
	"github.com/lox/cfrsolve/sdk/games"
	"github.com/lox/cfrsolve/sdk/solver"
	"github.com/lox/cfrsolve/sdk/solver/runtime"
)

type EvalCmd struct {
	Blueprint string `arg:"" help:"path to blueprint"`
	Game      string `help:"game to evaluate against (defaults to the blueprint's game)"`
	Playouts  int    `help:"also sample this many games with every seat following the blueprint"`
	Seed      int64  `help:"random seed for playouts; 0 uses time seed" default:"0"`
}

func (cmd *EvalCmd) Run(ctx context.Context, logger zerolog.Logger) error {
	bp, err := solver.LoadBlueprint(cmd.Blueprint)
	if err != nil {
		return fmt.Errorf("load blueprint: %w", err)
	}
	g, err := blueprintGame(bp, cmd.Game)
	if err != nil {
		return err
	}

	logger.Info().
		Str("game", g.Name()).
		Str("generated", bp.GeneratedAt.Format(time.RFC3339)).
		Int("iterations", bp.Iterations).
		Int("infosets", len(bp.Strategies)).
		Msg("Blueprint loaded")

	profile := bp.Profile()
	values, err := solver.ExpectedValues(g, profile)
	if err != nil {
		return err
	}
	nashConv := 0.0
	for p := range g.NumPlayers() {
		br, err := solver.BestResponseValue(g, profile, game.Player(p))
		if err != nil {
			return err
		}
		nashConv += br - values[p]
		logger.Info().
			Stringer("player", game.Player(p)).
			Float64("expected_value", values[p]).
			Float64("best_response", br).
			Float64("gain", br-values[p]).
			Msg("Player summary")
	}
	logger.Info().
		Float64("nash_conv", nashConv).
		Float64("exploitability", nashConv/float64(g.NumPlayers())).
		Msg("Evaluation complete")

	if cmd.Playouts <= 0 {
		return nil
	}
	res, err := runPlayouts(ctx, logger, g, runtime.New(bp, cmd.Seed), playoutOptions{Playouts: cmd.Playouts})
	if err != nil {
		return fmt.Errorf("run playouts: %w", err)
	}
	for _, p := range res.Players {
		logger.Info().
			Stringer("player", p.Player).
			Float64("mean", p.Mean).
			Float64("stderr", p.StdErr).
			Float64("expected_value", values[p.Player]).
			Msg("Playout summary")
	}
	logger.Info().Int("playouts", res.Playouts).Dur("duration", res.Duration).Msg("Playouts complete")
	return nil
}

// blueprintGame resolves the game a blueprint was trained on unless name
// overrides it.
func blueprintGame(bp *solver.Blueprint, name string) (game.Game, error) {
	if name == "" {
		name = bp.Game
	}
	if name == "" {
		return nil, fmt.Errorf("blueprint does not record its game; pass --game")
	}
	g, err := games.New(name)
	if err != nil {
		return nil, err
	}
	if bp.Players != 0 && bp.Players != g.NumPlayers() {
		return nil, fmt.Errorf("blueprint has %d players, game %q has %d", bp.Players, g.Name(), g.NumPlayers())
	}
	return g, nil
}
