package solver

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// UpdateMode controls when one player's regret updates become visible to the
// other players' traversals.
type UpdateMode uint8

const (
	// UpdateAlternating recomputes strategies before every player's pass, so a
	// player responds to the opponents' freshest strategies.
	UpdateAlternating UpdateMode = iota
	// UpdateSimultaneous fixes all strategies for a whole iteration.
	UpdateSimultaneous
)

func (m UpdateMode) String() string {
	switch m {
	case UpdateAlternating:
		return "alternating"
	case UpdateSimultaneous:
		return "simultaneous"
	default:
		return "unknown"
	}
}

// RegretMode selects the regret minimiser.
type RegretMode uint8

const (
	RegretMatchingMode RegretMode = iota
	// RegretMatchingPlusMode clamps a player's cumulative regrets at zero after
	// each of their passes.
	RegretMatchingPlusMode
)

func (m RegretMode) String() string {
	switch m {
	case RegretMatchingMode:
		return "rm"
	case RegretMatchingPlusMode:
		return "rm+"
	default:
		return "unknown"
	}
}

// AveragingMode selects how strategy increments are weighted over time.
type AveragingMode uint8

const (
	AveragingUniform AveragingMode = iota
	// AveragingLinear weights iteration t's contribution by t+1.
	AveragingLinear
	// AveragingDiscounted applies the DCFR discounts after every iteration.
	AveragingDiscounted
	// AveragingExponential weights each pass's regrets and average-strategy
	// contribution by exp(r(a) - mean(r)) of the instantaneous regrets and
	// normalises the average by a per-action denominator.
	AveragingExponential
)

func (m AveragingMode) String() string {
	switch m {
	case AveragingUniform:
		return "uniform"
	case AveragingLinear:
		return "linear"
	case AveragingDiscounted:
		return "discounted"
	case AveragingExponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// ParseUpdateMode parses the textual form produced by UpdateMode.String.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "alternating":
		return UpdateAlternating, nil
	case "simultaneous":
		return UpdateSimultaneous, nil
	default:
		return UpdateAlternating, fmt.Errorf("unknown update mode %q", s)
	}
}

// ParseRegretMode parses the textual form produced by RegretMode.String.
func ParseRegretMode(s string) (RegretMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rm":
		return RegretMatchingMode, nil
	case "rm+", "rmplus", "plus":
		return RegretMatchingPlusMode, nil
	default:
		return RegretMatchingMode, fmt.Errorf("unknown regret mode %q", s)
	}
}

// ParseAveragingMode parses the textual form produced by AveragingMode.String.
func ParseAveragingMode(s string) (AveragingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "uniform":
		return AveragingUniform, nil
	case "linear":
		return AveragingLinear, nil
	case "discounted", "dcfr":
		return AveragingDiscounted, nil
	case "exponential", "ecfr":
		return AveragingExponential, nil
	default:
		return AveragingUniform, fmt.Errorf("unknown averaging mode %q", s)
	}
}

// DiscountParams are the DCFR exponents. After iteration t (counting from 1)
// positive regrets are scaled by t^α/(t^α+1), negative regrets by t^β/(t^β+1)
// and the strategy accumulator by (t/(t+1))^γ.
type DiscountParams struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// DefaultDiscountParams returns the exponents recommended for DCFR.
func DefaultDiscountParams() DiscountParams {
	return DiscountParams{Alpha: 1.5, Beta: 0, Gamma: 2}
}

func (d DiscountParams) factors(t int) (positive, negative, mass float64) {
	ft := float64(t)
	ta := math.Pow(ft, d.Alpha)
	tb := math.Pow(ft, d.Beta)
	return ta / (ta + 1), tb / (tb + 1), math.Pow(ft/(ft+1), d.Gamma)
}

// ExponentialParams tune exponential weighting. Negative instantaneous
// regrets are limited to Beta before weighting; zero ignores them.
type ExponentialParams struct {
	Beta float64 `json:"beta"`
}

// TrainingConfig aggregates parameters that control a CFR solve.
type TrainingConfig struct {
	// Iterations is the iteration budget; every iteration runs one pass per player.
	Iterations int `json:"iterations"`
	// ConvergenceThreshold stops the solve once exploitability falls below it.
	// Zero disables the check.
	ConvergenceThreshold float64 `json:"convergence_threshold"`
	// EvalEvery is the number of iterations between exploitability checks.
	EvalEvery int `json:"eval_every"`
	// TimeBudget bounds wall-clock time; checked between iterations. Zero disables.
	TimeBudget time.Duration `json:"time_budget"`

	UpdateMode UpdateMode     `json:"update_mode"`
	RegretMode RegretMode     `json:"regret_mode"`
	Averaging  AveragingMode  `json:"averaging"`
	Discount   DiscountParams `json:"discount"`
	// Exponential only applies with AveragingExponential.
	Exponential ExponentialParams `json:"exponential"`

	// Workers splits each pass across the root's subtrees. One means sequential.
	Workers int `json:"workers"`

	ProgressEvery      int           `json:"progress_every"`
	CheckpointEvery    int           `json:"checkpoint_every"`
	CheckpointInterval time.Duration `json:"checkpoint_interval"`

	// VerifyContract enables the acting-player consistency checks, backed by
	// an LRU of ContractCacheSize histories.
	VerifyContract    bool `json:"verify_contract"`
	ContractCacheSize int  `json:"contract_cache_size"`
}

// Validate ensures the training parameters are safe to use.
func (c TrainingConfig) Validate() error {
	if c.Iterations <= 0 {
		return errors.New("iterations must be > 0")
	}
	if c.ConvergenceThreshold < 0 || math.IsNaN(c.ConvergenceThreshold) {
		return errors.New("convergence threshold cannot be negative")
	}
	if c.ConvergenceThreshold > 0 && c.EvalEvery <= 0 {
		return errors.New("eval interval must be > 0 when a convergence threshold is set")
	}
	if c.TimeBudget < 0 {
		return errors.New("time budget cannot be negative")
	}
	if c.UpdateMode > UpdateSimultaneous {
		return errors.New("invalid update mode")
	}
	if c.RegretMode > RegretMatchingPlusMode {
		return errors.New("invalid regret mode")
	}
	if c.Averaging > AveragingExponential {
		return errors.New("invalid averaging mode")
	}
	if c.Averaging == AveragingDiscounted {
		if c.Discount.Gamma < 0 {
			return errors.New("discount gamma cannot be negative")
		}
	}
	if c.Averaging == AveragingExponential {
		if c.Exponential.Beta > 0 || math.IsNaN(c.Exponential.Beta) {
			return errors.New("exponential beta must be <= 0")
		}
	}
	if c.Workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if c.ProgressEvery < 0 {
		return errors.New("progress interval cannot be negative")
	}
	if c.CheckpointEvery < 0 {
		return errors.New("checkpoint interval cannot be negative")
	}
	if c.CheckpointInterval < 0 {
		return errors.New("checkpoint duration cannot be negative")
	}
	if c.VerifyContract && c.ContractCacheSize <= 0 {
		return errors.New("contract cache size must be > 0 when verification is enabled")
	}
	return nil
}

// DefaultTrainingConfig returns a configuration for vanilla CFR with the
// textbook update rules.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Iterations:        1000,
		EvalEvery:         100,
		UpdateMode:        UpdateAlternating,
		RegretMode:        RegretMatchingMode,
		Averaging:         AveragingUniform,
		Discount:          DefaultDiscountParams(),
		Workers:           1,
		VerifyContract:    true,
		ContractCacheSize: 1 << 16,
	}
}
