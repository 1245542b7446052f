// Package config loads solve files written in HCL.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/cfrsolve/sdk/game"
	"github.com/lox/cfrsolve/sdk/games"
	"github.com/lox/cfrsolve/sdk/solver"
)

// SolveFile represents a complete solve configuration.
type SolveFile struct {
	Game       string           `hcl:"game"`
	Players    int              `hcl:"players,optional"`
	Solve      *SolveSettings   `hcl:"solve,block"`
	Checkpoint *CheckpointBlock `hcl:"checkpoint,block"`
	Output     *OutputBlock     `hcl:"output,block"`
}

// SolveSettings mirrors solver.TrainingConfig. Unset attributes keep the
// solver defaults.
type SolveSettings struct {
	Iterations     *int              `hcl:"iterations,optional"`
	Threshold      *float64          `hcl:"threshold,optional"`
	EvalEvery      *int              `hcl:"eval_every,optional"`
	TimeBudget     string            `hcl:"time_budget,optional"`
	Workers        *int              `hcl:"workers,optional"`
	UpdateMode     string            `hcl:"update_mode,optional"`
	RegretMode     string            `hcl:"regret_mode,optional"`
	Averaging      string            `hcl:"averaging,optional"`
	ProgressEvery  *int              `hcl:"progress_every,optional"`
	VerifyContract *bool             `hcl:"verify_contract,optional"`
	Discount       *DiscountBlock    `hcl:"discount,block"`
	Exponential    *ExponentialBlock `hcl:"exponential,block"`
}

// DiscountBlock overrides individual DCFR exponents.
type DiscountBlock struct {
	Alpha *float64 `hcl:"alpha,optional"`
	Beta  *float64 `hcl:"beta,optional"`
	Gamma *float64 `hcl:"gamma,optional"`
}

// ExponentialBlock tunes exponential weighting.
type ExponentialBlock struct {
	Beta *float64 `hcl:"beta,optional"`
}

// CheckpointBlock configures periodic checkpoints.
type CheckpointBlock struct {
	Path     string `hcl:"path"`
	Every    int    `hcl:"every,optional"`
	Interval string `hcl:"interval,optional"`
}

// OutputBlock names the artefacts written when a solve finishes.
type OutputBlock struct {
	Blueprint string `hcl:"blueprint,optional"`
	Parquet   string `hcl:"parquet,optional"`
}

// Load reads and decodes the solve file at filename.
func Load(filename string) (*SolveFile, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(src, filename)
}

// Parse decodes HCL source. filename is only used in diagnostics.
func Parse(src []byte, filename string) (*SolveFile, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg SolveFile
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	if cfg.Solve == nil {
		cfg.Solve = &SolveSettings{}
	}
	if cfg.Output == nil {
		cfg.Output = &OutputBlock{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the parts of the file that Training does not.
func (c *SolveFile) Validate() error {
	if strings.TrimSpace(c.Game) == "" {
		return fmt.Errorf("game is required")
	}
	if c.Players < 0 {
		return fmt.Errorf("invalid players: %d", c.Players)
	}
	if c.Checkpoint != nil {
		if c.Checkpoint.Path == "" {
			return fmt.Errorf("checkpoint path is required")
		}
		if c.Checkpoint.Every < 0 {
			return fmt.Errorf("invalid checkpoint every: %d", c.Checkpoint.Every)
		}
	}
	_, err := c.Training()
	return err
}

// NewGame resolves the configured game. A player count on plain kuhn selects
// the N-player variant; for other games it must match the model.
func (c *SolveFile) NewGame() (game.Game, error) {
	name := c.Game
	if strings.EqualFold(name, "kuhn") && c.Players > 0 {
		name = fmt.Sprintf("kuhn-%dp", c.Players)
	}
	g, err := games.New(name)
	if err != nil {
		return nil, err
	}
	if c.Players > 0 && g.NumPlayers() != c.Players {
		return nil, fmt.Errorf("game %q has %d players, config asks for %d", g.Name(), g.NumPlayers(), c.Players)
	}
	return g, nil
}

// Training converts the file into a validated solver configuration.
func (c *SolveFile) Training() (solver.TrainingConfig, error) {
	cfg := solver.DefaultTrainingConfig()
	s := c.Solve
	if s == nil {
		s = &SolveSettings{}
	}

	setInt(&cfg.Iterations, s.Iterations)
	setInt(&cfg.EvalEvery, s.EvalEvery)
	setInt(&cfg.Workers, s.Workers)
	setInt(&cfg.ProgressEvery, s.ProgressEvery)
	if s.Threshold != nil {
		cfg.ConvergenceThreshold = *s.Threshold
	}
	if s.VerifyContract != nil {
		cfg.VerifyContract = *s.VerifyContract
	}

	var err error
	if cfg.TimeBudget, err = parseDuration("time_budget", s.TimeBudget); err != nil {
		return cfg, err
	}
	if cfg.UpdateMode, err = solver.ParseUpdateMode(s.UpdateMode); err != nil {
		return cfg, err
	}
	if cfg.RegretMode, err = solver.ParseRegretMode(s.RegretMode); err != nil {
		return cfg, err
	}
	if cfg.Averaging, err = solver.ParseAveragingMode(s.Averaging); err != nil {
		return cfg, err
	}
	if d := s.Discount; d != nil {
		setFloat(&cfg.Discount.Alpha, d.Alpha)
		setFloat(&cfg.Discount.Beta, d.Beta)
		setFloat(&cfg.Discount.Gamma, d.Gamma)
	}
	if e := s.Exponential; e != nil {
		setFloat(&cfg.Exponential.Beta, e.Beta)
	}

	if ck := c.Checkpoint; ck != nil {
		cfg.CheckpointEvery = ck.Every
		if cfg.CheckpointInterval, err = parseDuration("checkpoint interval", ck.Interval); err != nil {
			return cfg, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid solve settings: %w", err)
	}
	return cfg, nil
}

// CheckpointPath returns the configured checkpoint path or "".
func (c *SolveFile) CheckpointPath() string {
	if c.Checkpoint == nil {
		return ""
	}
	return c.Checkpoint.Path
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}
