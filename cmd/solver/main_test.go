package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/cfrsolve/sdk/game"
	"github.com/lox/cfrsolve/sdk/games/kuhn"
	"github.com/lox/cfrsolve/sdk/games/matrix"
	"github.com/lox/cfrsolve/sdk/solver"
	"github.com/lox/cfrsolve/sdk/solver/runtime"
)

func TestTrainPlanFlagsOverrideSolveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solve.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
game = "leduc"

solve {
  iterations  = 300
  regret_mode = "rm"
  workers     = 2
}

checkpoint {
  path  = "leduc.json.gz"
  every = 100
}

output {
  blueprint = "leduc-file.json"
  parquet   = "leduc.parquet"
}
`), 0o644))

	cmd := &TrainCmd{Config: path, Game: "kuhn", Iterations: 42, RegretMode: "rm+", Out: "override.json"}
	plan, err := cmd.plan()
	require.NoError(t, err)

	assert.Equal(t, "leduc", plan.game.Name())
	assert.Equal(t, 42, plan.training.Iterations)
	assert.Equal(t, solver.RegretMatchingPlusMode, plan.training.RegretMode)
	assert.Equal(t, 2, plan.training.Workers)
	assert.Equal(t, 100, plan.training.CheckpointEvery)
	assert.Equal(t, "leduc.json.gz", plan.checkpoint)
	assert.Equal(t, "override.json", plan.blueprint)
	assert.Equal(t, "leduc.parquet", plan.parquet)
}

func TestTrainPlanWithoutSolveFile(t *testing.T) {
	plan, err := (&TrainCmd{Game: "kuhn", Players: 3}).plan()
	require.NoError(t, err)
	assert.Equal(t, "kuhn-3p", plan.game.Name())
	assert.Equal(t, "kuhn-3p-blueprint.json", plan.blueprint)
	assert.Equal(t, solver.DefaultTrainingConfig(), plan.training)

	_, err = (&TrainCmd{Game: "kuhn", UpdateMode: "sideways"}).plan()
	require.Error(t, err)

	_, err = (&TrainCmd{Game: "chess"}).plan()
	require.Error(t, err)
}

func TestTrainWritesArtefactsAndResumes(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "kuhn.json")
	pq := filepath.Join(dir, "kuhn.parquet")
	ckpt := filepath.Join(dir, "kuhn-ckpt.json.gz")

	first := &TrainCmd{Game: "kuhn", Iterations: 50, Out: out, Parquet: pq, Checkpoint: ckpt}
	require.NoError(t, first.Run(context.Background(), zerolog.Nop()))

	bp, err := solver.LoadBlueprint(out)
	require.NoError(t, err)
	assert.Equal(t, 50, bp.Iterations)
	require.NotNil(t, bp.Exploitability)
	assert.FileExists(t, pq)
	assert.FileExists(t, ckpt)

	resumed := &TrainCmd{Game: "kuhn", ResumeFrom: ckpt, Iterations: 80, Out: out}
	require.NoError(t, resumed.Run(context.Background(), zerolog.Nop()))

	again, err := solver.LoadBlueprint(out)
	require.NoError(t, err)
	assert.Equal(t, 80, again.Iterations)
	assert.Equal(t, bp.RunID, again.RunID)
}

func TestTrainResumeAppliesStoppingFlags(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "kuhn.json")
	ckpt := filepath.Join(dir, "kuhn-ckpt.json")

	first := &TrainCmd{Game: "kuhn", Iterations: 20, EvalEvery: 20, Out: out, Checkpoint: ckpt}
	require.NoError(t, first.Run(context.Background(), zerolog.Nop()))

	resumed := &TrainCmd{Game: "kuhn", ResumeFrom: ckpt, Iterations: 5000, Threshold: 0.05, EvalEvery: 10, Out: out}
	plan, err := resumed.plan()
	require.NoError(t, err)
	trainer, err := resumed.trainer(plan, zerolog.Nop())
	require.NoError(t, err)
	cfg := trainer.TrainingConfig()
	assert.Equal(t, 0.05, cfg.ConvergenceThreshold)
	assert.Equal(t, 10, cfg.EvalEvery)

	require.NoError(t, resumed.Run(context.Background(), zerolog.Nop()))
	bp, err := solver.LoadBlueprint(out)
	require.NoError(t, err)
	assert.Equal(t, solver.StatusConverged.String(), bp.Status)
	assert.Less(t, bp.Iterations, 5000)
}

func TestTrainInterruptedStillWritesBlueprint(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "kuhn.json")
	ckpt := filepath.Join(dir, "kuhn-ckpt.json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := &TrainCmd{Game: "kuhn", Iterations: 50, Out: out, Checkpoint: ckpt}
	require.NoError(t, cmd.Run(ctx, zerolog.Nop()))

	bp, err := solver.LoadBlueprint(out)
	require.NoError(t, err)
	assert.Equal(t, 0, bp.Iterations)
	assert.Equal(t, solver.StatusCancelled.String(), bp.Status)
	assert.FileExists(t, ckpt)
}

func TestParseHistory(t *testing.T) {
	g, err := kuhn.New(2)
	require.NoError(t, err)

	h, err := parseHistory(g, "")
	require.NoError(t, err)
	assert.Empty(t, h)

	h, err = parseHistory(g, "2, 0, p")
	require.NoError(t, err)
	assert.Equal(t, game.History{"2", "0", kuhn.Pass}, h)

	for _, bad := range []string{"2,2", "x", "2,0,p,p,b", "2,0,raise"} {
		_, err := parseHistory(g, bad)
		require.Error(t, err, bad)
	}
}

func TestRenderStrategiesFilters(t *testing.T) {
	g, err := kuhn.New(2)
	require.NoError(t, err)
	cfg := solver.DefaultTrainingConfig()
	cfg.Iterations = 20
	cfg.EvalEvery = 0
	trainer, err := solver.NewTrainer(g, cfg)
	require.NoError(t, err)
	require.NoError(t, trainer.Run(context.Background(), nil))
	bp := trainer.Blueprint()

	all := renderStrategies(bp, strategyFilter{player: -1})
	assert.Contains(t, all, "0:2:pb")
	assert.Contains(t, all, "1:0:b")
	assert.Contains(t, all, "INFOSET")

	p1 := renderStrategies(bp, strategyFilter{player: 1})
	assert.Contains(t, p1, "1:0:b")
	assert.NotContains(t, p1, "0:2:pb")

	kings := renderStrategies(bp, strategyFilter{player: -1, prefix: "0:2"})
	assert.Contains(t, kings, "0:2:pb")
	assert.NotContains(t, kings, "0:1:")
}

func TestRunPlayoutsMatchesExpectedValue(t *testing.T) {
	g := matrix.MatchingPennies()
	bp := &solver.Blueprint{Game: g.Name(), Players: 2, Strategies: solver.Profile{}}

	res, err := runPlayouts(context.Background(), zerolog.Nop(), g, runtime.New(bp, 7), playoutOptions{Playouts: 4000})
	require.NoError(t, err)
	require.Len(t, res.Players, 2)
	for _, p := range res.Players {
		assert.InDelta(t, 0, p.Mean, 0.1)
		assert.Greater(t, p.StdErr, 0.0)
	}
	assert.InDelta(t, 0, res.Players[0].Mean+res.Players[1].Mean, 1e-9, "zero sum")

	_, err = runPlayouts(context.Background(), zerolog.Nop(), g, runtime.New(bp, 7), playoutOptions{})
	require.Error(t, err)
}
