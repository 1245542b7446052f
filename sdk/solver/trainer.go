package solver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lox/cfrsolve/sdk/game"
)

// Status is the driver's lifecycle state.
type Status int32

const (
	StatusIdle Status = iota
	StatusRunning
	// StatusExhausted means the iteration or time budget ran out.
	StatusExhausted
	// StatusConverged means exploitability fell below the configured threshold.
	StatusConverged
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusExhausted:
		return "exhausted"
	case StatusConverged:
		return "converged"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress contains metadata emitted during long-running solver operations.
type Progress struct {
	Iteration int
	InfoSets  int
	Stats     TraversalStats
	Status    Status
	Elapsed   time.Duration
	// Exploitability is the latest measurement; Evaluated is false until the
	// first one is taken.
	Exploitability float64
	Evaluated      bool
}

// Option customises a Trainer.
type Option func(*Trainer)

// WithClock replaces the wall clock used for time budgets and time-based
// checkpoints.
func WithClock(clock quartz.Clock) Option {
	return func(t *Trainer) { t.clock = clock }
}

// WithLogger routes checkpoint and convergence events to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Trainer) { t.logger = logger }
}

// Trainer runs vanilla CFR iterations over a game and owns the regret and
// average-strategy tables. Run must not be called concurrently with itself or
// with SaveCheckpoint.
type Trainer struct {
	game   game.Game
	cfg    TrainingConfig
	check  *contractChecker
	table  *InfoSetTable
	clock  quartz.Clock
	logger zerolog.Logger
	runID  string

	iteration atomic.Int64
	// cursor is the next player to update within the current iteration.
	cursor int
	status atomic.Int32

	statsMu        sync.Mutex
	stats          TraversalStats
	exploitability float64
	evaluated      bool

	checkpointPath string
	lastCheckpoint time.Time
}

// NewTrainer constructs a trainer for g.
func NewTrainer(g game.Game, cfg TrainingConfig, opts ...Option) (*Trainer, error) {
	if g == nil {
		return nil, errors.New("game is required")
	}
	if n := g.NumPlayers(); n < 1 || n > MaxPlayers {
		return nil, fmt.Errorf("game %q has %d players, supported range is [1,%d]", g.Name(), n, MaxPlayers)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cacheSize := 0
	if cfg.VerifyContract {
		cacheSize = cfg.ContractCacheSize
	}
	check, err := newContractChecker(g, cacheSize)
	if err != nil {
		return nil, err
	}

	t := &Trainer{
		game:   g,
		cfg:    cfg,
		check:  check,
		table:  NewInfoSetTable(),
		clock:  quartz.NewReal(),
		logger: zerolog.Nop(),
		runID:  uuid.NewString(),
	}
	t.table.weighted = cfg.Averaging == AveragingExponential
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Run executes iterations until the budget is exhausted, the average strategy
// converges, or ctx is cancelled. Cancellation is observed between passes; a
// later Run resumes from the next pending pass.
func (t *Trainer) Run(ctx context.Context, progress func(Progress)) error {
	t.setStatus(StatusRunning)
	start := t.clock.Now()
	t.lastCheckpoint = start

	batch := t.cfg.ProgressEvery
	if batch <= 0 {
		batch = max(t.cfg.Iterations/100, 1)
	}

	converged := false
	for int(t.iteration.Load()) < t.cfg.Iterations {
		if err := ctx.Err(); err != nil {
			t.setStatus(StatusCancelled)
			return err
		}
		if t.cfg.TimeBudget > 0 && t.clock.Since(start) >= t.cfg.TimeBudget {
			t.logger.Info().
				Int64("iteration", t.iteration.Load()).
				Dur("budget", t.cfg.TimeBudget).
				Msg("Time budget exhausted")
			break
		}

		iterStart := t.clock.Now()
		stats, err := t.iterate(ctx)
		stats.IterationTime = t.clock.Since(iterStart)
		t.setStats(stats)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				t.setStatus(StatusCancelled)
			} else {
				t.setStatus(StatusFailed)
			}
			return err
		}
		iter := int(t.iteration.Load())

		if t.cfg.EvalEvery > 0 && iter%t.cfg.EvalEvery == 0 {
			expl, err := t.evaluate()
			if err != nil {
				t.setStatus(StatusFailed)
				return err
			}
			t.logger.Debug().Int("iteration", iter).Float64("exploitability", expl).Msg("Evaluated average strategy")
			if t.cfg.ConvergenceThreshold > 0 && expl < t.cfg.ConvergenceThreshold {
				t.logger.Info().
					Int("iteration", iter).
					Float64("exploitability", expl).
					Float64("threshold", t.cfg.ConvergenceThreshold).
					Msg("Converged")
				converged = true
			}
		}

		if t.checkpointDue(iter) {
			if err := t.SaveCheckpoint(t.checkpointPath); err != nil {
				t.setStatus(StatusFailed)
				return err
			}
		}

		if progress != nil && iter%batch == 0 {
			progress(t.progress(start))
		}
		if converged {
			break
		}
	}

	if converged {
		t.setStatus(StatusConverged)
	} else {
		t.setStatus(StatusExhausted)
	}

	if t.checkpointPath != "" {
		if err := t.SaveCheckpoint(t.checkpointPath); err != nil {
			t.setStatus(StatusFailed)
			return err
		}
	}
	if progress != nil {
		progress(t.progress(start))
	}
	return nil
}

// iterate finishes the current iteration: one pass per player starting at the
// cursor, followed by the discounting step when enabled.
func (t *Trainer) iterate(ctx context.Context) (TraversalStats, error) {
	iter := t.iteration.Load()
	players := t.game.NumPlayers()

	var total TraversalStats
	for t.cursor < players {
		if t.cursor > 0 {
			if err := ctx.Err(); err != nil {
				return total, err
			}
		}
		player := game.Player(t.cursor)
		_, stats, err := runPass(t.check, t.table, t.passParams(iter, player))
		total.merge(stats)
		if err != nil {
			return total, err
		}
		if t.cfg.Averaging == AveragingExponential {
			if err := t.table.foldExponential(player, t.cfg.Exponential.Beta); err != nil {
				return total, err
			}
		}
		if t.cfg.RegretMode == RegretMatchingPlusMode {
			t.table.clampRegrets(player)
		}
		t.cursor++
	}
	t.cursor = 0

	if t.cfg.Averaging == AveragingDiscounted {
		pos, neg, mass := t.cfg.Discount.factors(int(iter) + 1)
		if err := t.table.discount(pos, neg, mass); err != nil {
			return total, err
		}
	}
	t.iteration.Add(1)
	return total, nil
}

func (t *Trainer) passParams(iter int64, player game.Player) passParams {
	p := passParams{
		updating: player,
		epoch:    iter,
		weight:   1,
		workers:  t.cfg.Workers,

		exponential: t.cfg.Averaging == AveragingExponential,
	}
	if t.cfg.UpdateMode == UpdateAlternating {
		p.epoch = iter*int64(t.game.NumPlayers()) + int64(player)
	}
	if t.cfg.Averaging == AveragingLinear {
		p.weight = float64(iter + 1)
	}
	return p
}

func (t *Trainer) checkpointDue(iter int) bool {
	if t.checkpointPath == "" {
		return false
	}
	if t.cfg.CheckpointEvery > 0 && iter%t.cfg.CheckpointEvery == 0 {
		return true
	}
	return t.cfg.CheckpointInterval > 0 && t.clock.Since(t.lastCheckpoint) >= t.cfg.CheckpointInterval
}

func (t *Trainer) evaluate() (float64, error) {
	expl, err := Exploitability(t.game, t.AverageStrategy())
	if err != nil {
		return 0, err
	}
	t.statsMu.Lock()
	t.exploitability = expl
	t.evaluated = true
	t.statsMu.Unlock()
	return expl, nil
}

func (t *Trainer) progress(start time.Time) Progress {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return Progress{
		Iteration:      int(t.iteration.Load()),
		InfoSets:       t.table.Size(),
		Stats:          t.stats,
		Status:         t.Status(),
		Elapsed:        t.clock.Since(start),
		Exploitability: t.exploitability,
		Evaluated:      t.evaluated,
	}
}

// AverageStrategy returns the normalised average strategy of every
// information set discovered so far.
func (t *Trainer) AverageStrategy() Profile {
	return profileFrom(t.table, (*InfoSet).AverageStrategy)
}

// CurrentStrategy returns the regret-matching strategy of every information
// set discovered so far.
func (t *Trainer) CurrentStrategy() Profile {
	return profileFrom(t.table, (*InfoSet).Strategy)
}

// Exploitability measures the current average strategy.
func (t *Trainer) Exploitability() (float64, error) {
	return t.evaluate()
}

// Blueprint materialises the averaged strategy produced so far.
func (t *Trainer) Blueprint() *Blueprint {
	bp := &Blueprint{
		Version:     blueprintFileVersion,
		GeneratedAt: t.clock.Now().UTC(),
		RunID:       t.runID,
		Game:        t.game.Name(),
		Players:     t.game.NumPlayers(),
		Iterations:  int(t.iteration.Load()),
		Status:      t.Status().String(),
		Strategies:  t.AverageStrategy(),
	}
	t.statsMu.Lock()
	if t.evaluated {
		expl := t.exploitability
		bp.Exploitability = &expl
	}
	t.statsMu.Unlock()
	return bp
}

// Reset zeroes every accumulator and rewinds the trainer to iteration zero.
func (t *Trainer) Reset() {
	t.table.Reset()
	t.iteration.Store(0)
	t.cursor = 0
	t.setStatus(StatusIdle)
	t.statsMu.Lock()
	t.stats = TraversalStats{}
	t.exploitability = 0
	t.evaluated = false
	t.statsMu.Unlock()
}

func (t *Trainer) setStats(stats TraversalStats) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	t.stats = stats
}

func (t *Trainer) setStatus(s Status) {
	t.status.Store(int32(s))
}

// Stats returns the most recent traversal statistics recorded by the trainer.
func (t *Trainer) Stats() TraversalStats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.stats
}

func (t *Trainer) Status() Status {
	return Status(t.status.Load())
}

func (t *Trainer) TrainingConfig() TrainingConfig {
	return t.cfg
}

func (t *Trainer) Iteration() int64 {
	return t.iteration.Load()
}

func (t *Trainer) RunID() string {
	return t.runID
}

func (t *Trainer) Game() game.Game {
	return t.game
}

// Table exposes the underlying information-set store.
func (t *Trainer) Table() *InfoSetTable {
	return t.table
}

func (t *Trainer) SetTotalIterations(n int) error {
	current := int(t.iteration.Load())
	if n < current {
		return fmt.Errorf("total iterations %d less than completed %d", n, current)
	}
	t.cfg.Iterations = n
	return nil
}

// SetStoppingRules replaces the convergence threshold, the evaluation interval
// and the time budget. They leave the update rules alone, so a resumed run may
// change them.
func (t *Trainer) SetStoppingRules(threshold float64, evalEvery int, budget time.Duration) error {
	cfg := t.cfg
	cfg.ConvergenceThreshold = threshold
	cfg.EvalEvery = evalEvery
	cfg.TimeBudget = budget
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.cfg = cfg
	return nil
}

func (t *Trainer) SetProgressEvery(n int) {
	if n < 0 {
		n = 0
	}
	t.cfg.ProgressEvery = n
}

// Result summarises a finished solve.
type Result struct {
	RunID           string
	Status          Status
	Iterations      int
	Exploitability  float64
	AverageStrategy Profile
	Stats           TraversalStats
}

// Solve runs a fresh trainer for g to completion and returns its average
// strategy together with the final exploitability.
func Solve(ctx context.Context, g game.Game, cfg TrainingConfig, opts ...Option) (*Result, error) {
	t, err := NewTrainer(g, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := t.Run(ctx, nil); err != nil {
		return nil, err
	}
	expl, err := t.Exploitability()
	if err != nil {
		return nil, err
	}
	return &Result{
		RunID:           t.runID,
		Status:          t.Status(),
		Iterations:      int(t.Iteration()),
		Exploitability:  expl,
		AverageStrategy: t.AverageStrategy(),
		Stats:           t.Stats(),
	}, nil
}
