package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/cfrsolve/internal/config"
	"github.com/lox/cfrsolve/internal/metrics"
	"github.com/lox/cfrsolve/sdk/game"
	"github.com/lox/cfrsolve/sdk/solver"
)

type TrainCmd struct {
	Config  string `short:"c" help:"path to an HCL solve file"`
	Game    string `help:"game to solve when no solve file is given" default:"kuhn"`
	Players int    `help:"player count for games that support it (0 keeps the default)"`

	Iterations int           `help:"iteration budget (0 keeps the configured value)"`
	Threshold  float64       `help:"stop once exploitability falls below this value"`
	EvalEvery  int           `help:"iterations between exploitability checks"`
	TimeBudget time.Duration `help:"wall-clock budget, checked between iterations"`
	Workers    int           `help:"root subtrees traversed in parallel"`
	UpdateMode string        `help:"alternating or simultaneous"`
	RegretMode string        `help:"rm or rm+"`
	Averaging  string        `help:"uniform, linear, discounted or exponential"`

	Out     string `short:"o" help:"path to write the blueprint"`
	Parquet string `help:"also export the blueprint as parquet to this path"`

	Checkpoint         string        `help:"path to write checkpoints (.gz compresses)"`
	CheckpointEvery    int           `help:"checkpoint interval in iterations"`
	CheckpointInterval time.Duration `help:"checkpoint interval in wall-clock time"`
	ResumeFrom         string        `help:"resume training from a checkpoint file"`

	ProgressEvery int    `help:"log progress every N iterations (0 => iterations/100)"`
	MetricsAddr   string `help:"serve Prometheus metrics on this address, e.g. :9090"`
	CPUProfile    string `help:"write CPU profile to file"`
}

type trainPlan struct {
	game       game.Game
	training   solver.TrainingConfig
	checkpoint string
	blueprint  string
	parquet    string
}

func (cmd *TrainCmd) plan() (*trainPlan, error) {
	file := &config.SolveFile{Game: cmd.Game, Players: cmd.Players, Output: &config.OutputBlock{}}
	if cmd.Config != "" {
		loaded, err := config.Load(cmd.Config)
		if err != nil {
			return nil, fmt.Errorf("load solve file: %w", err)
		}
		file = loaded
	}

	g, err := file.NewGame()
	if err != nil {
		return nil, err
	}
	training, err := file.Training()
	if err != nil {
		return nil, err
	}
	if err := cmd.override(&training); err != nil {
		return nil, err
	}

	p := &trainPlan{
		game:       g,
		training:   training,
		checkpoint: file.CheckpointPath(),
		blueprint:  file.Output.Blueprint,
		parquet:    file.Output.Parquet,
	}
	if cmd.Checkpoint != "" {
		p.checkpoint = cmd.Checkpoint
	}
	if cmd.Out != "" {
		p.blueprint = cmd.Out
	}
	if p.blueprint == "" {
		p.blueprint = g.Name() + "-blueprint.json"
	}
	if cmd.Parquet != "" {
		p.parquet = cmd.Parquet
	}
	return p, nil
}

// override applies flags that were set on top of the solve file.
func (cmd *TrainCmd) override(cfg *solver.TrainingConfig) error {
	if cmd.Iterations > 0 {
		cfg.Iterations = cmd.Iterations
	}
	if cmd.Threshold > 0 {
		cfg.ConvergenceThreshold = cmd.Threshold
	}
	if cmd.EvalEvery > 0 {
		cfg.EvalEvery = cmd.EvalEvery
	}
	if cmd.TimeBudget > 0 {
		cfg.TimeBudget = cmd.TimeBudget
	}
	if cmd.Workers > 0 {
		cfg.Workers = cmd.Workers
	}
	if cmd.ProgressEvery > 0 {
		cfg.ProgressEvery = cmd.ProgressEvery
	}
	if cmd.CheckpointEvery > 0 {
		cfg.CheckpointEvery = cmd.CheckpointEvery
	}
	if cmd.CheckpointInterval > 0 {
		cfg.CheckpointInterval = cmd.CheckpointInterval
	}

	var err error
	if cmd.UpdateMode != "" {
		if cfg.UpdateMode, err = solver.ParseUpdateMode(cmd.UpdateMode); err != nil {
			return err
		}
	}
	if cmd.RegretMode != "" {
		if cfg.RegretMode, err = solver.ParseRegretMode(cmd.RegretMode); err != nil {
			return err
		}
	}
	if cmd.Averaging != "" {
		if cfg.Averaging, err = solver.ParseAveragingMode(cmd.Averaging); err != nil {
			return err
		}
	}
	return cfg.Validate()
}

func (cmd *TrainCmd) Run(ctx context.Context, logger zerolog.Logger) error {
	if cmd.CPUProfile != "" {
		f, err := os.Create(cmd.CPUProfile)
		if err != nil {
			return fmt.Errorf("create cpu profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("start cpu profile: %w", err)
		}
		defer pprof.StopCPUProfile()
		logger.Info().Str("path", cmd.CPUProfile).Msg("CPU profiling enabled")
	}

	plan, err := cmd.plan()
	if err != nil {
		return err
	}

	trainer, err := cmd.trainer(plan, logger)
	if err != nil {
		return err
	}
	if plan.checkpoint != "" {
		cfg := trainer.TrainingConfig()
		trainer.EnableCheckpoints(plan.checkpoint, cfg.CheckpointEvery)
		trainer.SetCheckpointInterval(cfg.CheckpointInterval)
	}

	m := metrics.New(plan.game.Name(), trainer.RunID())
	m.SetStart(int(trainer.Iteration()))
	if cmd.MetricsAddr != "" {
		stop, err := serveMetrics(cmd.MetricsAddr, m, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	start := time.Now()
	progress := func(p solver.Progress) {
		m.Observe(p)
		ev := logger.Info().
			Int("iteration", p.Iteration).
			Int("infosets", p.InfoSets).
			Int64("nodes", p.Stats.NodesVisited).
			Int("max_depth", p.Stats.MaxDepth).
			Dur("iter_time", p.Stats.IterationTime)
		if p.Evaluated {
			ev = ev.Float64("exploitability", p.Exploitability)
		}
		ev.Msg("Progress")
	}

	runErr := trainer.Run(ctx, progress)
	m.SetStatus(trainer.Status())
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		logger.Warn().Int64("iteration", trainer.Iteration()).Msg("Training interrupted")
		if plan.checkpoint != "" {
			if err := trainer.SaveCheckpoint(plan.checkpoint); err != nil {
				return err
			}
			logger.Info().Str("path", plan.checkpoint).Msg("Checkpoint saved, resume with --resume-from")
		}
	default:
		return runErr
	}

	bp := trainer.Blueprint()
	if bp.Exploitability == nil {
		expl, err := trainer.Exploitability()
		if err != nil {
			return fmt.Errorf("evaluate: %w", err)
		}
		bp.Exploitability = &expl
	}
	logger.Info().
		Dur("duration", time.Since(start)).
		Int("iterations", bp.Iterations).
		Int("infosets", len(bp.Strategies)).
		Float64("exploitability", *bp.Exploitability).
		Str("status", bp.Status).
		Msg("Training finished")

	if err := bp.Save(plan.blueprint); err != nil {
		return fmt.Errorf("save blueprint: %w", err)
	}
	logger.Info().Str("path", plan.blueprint).Msg("Blueprint saved")

	if plan.parquet != "" {
		if err := bp.ExportParquet(plan.parquet); err != nil {
			return fmt.Errorf("export parquet: %w", err)
		}
		logger.Info().Str("path", plan.parquet).Msg("Parquet export written")
	}
	return nil
}

func (cmd *TrainCmd) trainer(plan *trainPlan, logger zerolog.Logger) (*solver.Trainer, error) {
	if cmd.ResumeFrom == "" {
		trainer, err := solver.NewTrainer(plan.game, plan.training, solver.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		cfg := plan.training
		logger.Info().
			Str("game", plan.game.Name()).
			Str("run_id", trainer.RunID()).
			Int("iterations", cfg.Iterations).
			Int("workers", cfg.Workers).
			Str("update_mode", cfg.UpdateMode.String()).
			Str("regret_mode", cfg.RegretMode.String()).
			Str("averaging", cfg.Averaging.String()).
			Msg("Starting training run")
		return trainer, nil
	}

	trainer, err := solver.LoadTrainerFromCheckpoint(cmd.ResumeFrom, plan.game, solver.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if cmd.Iterations > 0 {
		if err := trainer.SetTotalIterations(cmd.Iterations); err != nil {
			return nil, err
		}
	}
	if cmd.ProgressEvery > 0 {
		trainer.SetProgressEvery(cmd.ProgressEvery)
	}
	if cmd.Threshold > 0 || cmd.EvalEvery > 0 || cmd.TimeBudget > 0 {
		cfg := trainer.TrainingConfig()
		threshold, evalEvery, budget := cfg.ConvergenceThreshold, cfg.EvalEvery, cfg.TimeBudget
		if cmd.Threshold > 0 {
			threshold = cmd.Threshold
		}
		if cmd.EvalEvery > 0 {
			evalEvery = cmd.EvalEvery
		}
		if cmd.TimeBudget > 0 {
			budget = cmd.TimeBudget
		}
		if err := trainer.SetStoppingRules(threshold, evalEvery, budget); err != nil {
			return nil, err
		}
	}
	cfg := trainer.TrainingConfig()
	if cmd.Workers > 0 && cmd.Workers != cfg.Workers {
		logger.Warn().Int("requested", cmd.Workers).Int("checkpoint", cfg.Workers).Msg("Cannot change workers when resuming; keeping original")
	}
	if cmd.RegretMode != "" || cmd.Averaging != "" || cmd.UpdateMode != "" {
		logger.Warn().Msg("Update rules are fixed by the checkpoint; ignoring mode flags")
	}
	logger.Info().
		Str("game", plan.game.Name()).
		Str("run_id", trainer.RunID()).
		Int64("resume_iteration", trainer.Iteration()).
		Int("iterations", cfg.Iterations).
		Float64("threshold", cfg.ConvergenceThreshold).
		Int("eval_every", cfg.EvalEvery).
		Dur("time_budget", cfg.TimeBudget).
		Str("checkpoint", cmd.ResumeFrom).
		Msg("Resuming training run")
	return trainer, nil
}

func serveMetrics(addr string, m *metrics.Solver, logger zerolog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
