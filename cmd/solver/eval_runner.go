package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/cfrsolve/sdk/game"
	"github.com/lox/cfrsolve/sdk/solver/runtime"
)

type playoutOptions struct {
	Playouts int
}

type playoutResult struct {
	Playouts int
	Duration time.Duration
	Players  []playoutPlayer
}

type playoutPlayer struct {
	Player game.Player
	Mean   float64
	StdErr float64
}

// runPlayouts samples complete games with every seat following the blueprint
// and summarises the realised utilities.
func runPlayouts(ctx context.Context, logger zerolog.Logger, g game.Game, policy *runtime.Policy, opts playoutOptions) (*playoutResult, error) {
	if opts.Playouts <= 0 {
		return nil, fmt.Errorf("playouts must be positive (got %d)", opts.Playouts)
	}

	start := time.Now()
	samples := make([][]float64, g.NumPlayers())
	for i := range samples {
		samples[i] = make([]float64, 0, opts.Playouts)
	}

	report := max(opts.Playouts/10, 1)
	for n := 0; n < opts.Playouts; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		_, utilities, err := policy.Playout(g)
		if err != nil {
			return nil, err
		}
		for p, u := range utilities {
			samples[p] = append(samples[p], u)
		}
		if (n+1)%report == 0 {
			logger.Debug().Int("playouts", n+1).Msg("Playout progress")
		}
	}

	res := &playoutResult{Playouts: opts.Playouts, Duration: time.Since(start)}
	for p, values := range samples {
		mean, std := stat.MeanStdDev(values, nil)
		res.Players = append(res.Players, playoutPlayer{
			Player: game.Player(p),
			Mean:   mean,
			StdErr: std / math.Sqrt(float64(len(values))),
		})
	}
	return res, nil
}
