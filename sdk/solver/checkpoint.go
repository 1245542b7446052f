package solver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	gzip "github.com/klauspost/pgzip"

	"github.com/lox/cfrsolve/internal/fileutil"
	"github.com/lox/cfrsolve/sdk/game"
)

const checkpointFileVersion = 1

type checkpointSnapshot struct {
	Version   int               `json:"version"`
	RunID     string            `json:"run_id"`
	Game      string            `json:"game"`
	Players   int               `json:"players"`
	Iteration int64             `json:"iteration"`
	Cursor    int               `json:"cursor"`
	Training  TrainingConfig    `json:"training"`
	Stats     TraversalStats    `json:"stats"`
	InfoSets  []infoSetSnapshot `json:"infosets"`
}

type infoSetSnapshot struct {
	ID          string        `json:"id"`
	Player      game.Player   `json:"player"`
	Actions     []game.Action `json:"actions"`
	RegretSum   []float64     `json:"regret_sum"`
	StrategySum []float64     `json:"strategy_sum"`
	WeightSum   []float64     `json:"weight_sum,omitempty"`
	// Current is the strategy fixed for an iteration that is only partly
	// done; simultaneous updates must keep playing it after a resume.
	Current []float64 `json:"current,omitempty"`
}

// EnableCheckpoints configures the trainer to write checkpoints to path every
// n iterations and when Run returns. Zero keeps only the final checkpoint
// unless a checkpoint interval is configured.
func (t *Trainer) EnableCheckpoints(path string, every int) {
	t.checkpointPath = path
	if every >= 0 {
		t.cfg.CheckpointEvery = every
	}
}

// SetCheckpointInterval additionally writes a checkpoint whenever d has
// elapsed since the previous one.
func (t *Trainer) SetCheckpointInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.cfg.CheckpointInterval = d
}

// SaveCheckpoint writes a snapshot of the trainer state to path. Paths ending
// in .gz are gzip compressed.
func (t *Trainer) SaveCheckpoint(path string) error {
	snap := t.buildCheckpoint()
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return encodeCheckpoint(w, snap, isGzipPath(path))
	})
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	t.lastCheckpoint = t.clock.Now()
	t.logger.Debug().
		Str("path", path).
		Int64("iteration", snap.Iteration).
		Int("infosets", len(snap.InfoSets)).
		Msg("Checkpoint saved")
	return nil
}

// LoadTrainerFromCheckpoint restores a trainer for g from a previously saved
// checkpoint. The checkpoint must have been produced for a game with the same
// name and player count.
func LoadTrainerFromCheckpoint(path string, g game.Game, opts ...Option) (*Trainer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if isGzipPath(path) {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip checkpoint: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	snap, err := decodeCheckpoint(r)
	if err != nil {
		return nil, err
	}
	if snap.Game != g.Name() {
		return nil, fmt.Errorf("checkpoint is for game %q, not %q", snap.Game, g.Name())
	}
	if snap.Players != g.NumPlayers() {
		return nil, fmt.Errorf("checkpoint has %d players, game has %d", snap.Players, g.NumPlayers())
	}
	if snap.Cursor < 0 || snap.Cursor >= snap.Players {
		return nil, fmt.Errorf("checkpoint cursor %d outside [0,%d)", snap.Cursor, snap.Players)
	}

	trainer, err := NewTrainer(g, snap.Training, opts...)
	if err != nil {
		return nil, err
	}
	trainer.runID = snap.RunID
	trainer.iteration.Store(snap.Iteration)
	trainer.cursor = snap.Cursor
	trainer.stats = snap.Stats

	for _, is := range snap.InfoSets {
		entry, err := restoreInfoSet(is, trainer.table.weighted)
		if err != nil {
			return nil, err
		}
		if is.Current != nil {
			if _, live := trainer.liveEpoch(); !live {
				return nil, fmt.Errorf("checkpoint infoset %q carries a strategy outside an open iteration", is.ID)
			}
			entry.current = append([]float64(nil), is.Current...)
			entry.epoch = snap.Iteration
		}
		trainer.table.insert(entry)
	}
	return trainer, nil
}

// liveEpoch reports the strategy epoch that later passes of the current
// iteration will read, when they share it with passes already completed.
func (t *Trainer) liveEpoch() (int64, bool) {
	if t.cursor == 0 || t.cfg.UpdateMode != UpdateSimultaneous {
		return 0, false
	}
	return t.iteration.Load(), true
}

func (t *Trainer) buildCheckpoint() *checkpointSnapshot {
	entries := t.table.Sorted()
	snap := &checkpointSnapshot{
		Version:   checkpointFileVersion,
		RunID:     t.runID,
		Game:      t.game.Name(),
		Players:   t.game.NumPlayers(),
		Iteration: t.iteration.Load(),
		Cursor:    t.cursor,
		Training:  t.cfg,
		Stats:     t.Stats(),
		InfoSets:  make([]infoSetSnapshot, 0, len(entries)),
	}
	epoch, live := t.liveEpoch()
	for _, e := range entries {
		snap.InfoSets = append(snap.InfoSets, e.snapshot(epoch, live))
	}
	return snap
}

func (e *InfoSet) snapshot(epoch int64, live bool) infoSetSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := infoSetSnapshot{
		ID:          e.ID,
		Player:      e.Player,
		Actions:     append([]game.Action(nil), e.Actions...),
		RegretSum:   append([]float64(nil), e.RegretSum...),
		StrategySum: append([]float64(nil), e.StrategySum...),
	}
	if e.WeightSum != nil {
		s.WeightSum = append([]float64(nil), e.WeightSum...)
	}
	if live && e.current != nil && e.epoch == epoch {
		s.Current = append([]float64(nil), e.current...)
	}
	return s
}

func restoreInfoSet(s infoSetSnapshot, weighted bool) (*InfoSet, error) {
	if s.ID == "" {
		return nil, errors.New("checkpoint infoset without id")
	}
	n := len(s.Actions)
	if n == 0 || len(s.RegretSum) != n || len(s.StrategySum) != n {
		return nil, fmt.Errorf("checkpoint infoset %q has mismatched vector lengths", s.ID)
	}
	if weighted && len(s.WeightSum) != n {
		return nil, fmt.Errorf("checkpoint infoset %q lacks strategy weights", s.ID)
	}
	if s.Current != nil && len(s.Current) != n {
		return nil, fmt.Errorf("checkpoint infoset %q has a mismatched current strategy", s.ID)
	}
	entry := newInfoSet(s.ID, 0, s.Player, s.Actions, weighted)
	copy(entry.RegretSum, s.RegretSum)
	copy(entry.StrategySum, s.StrategySum)
	copy(entry.WeightSum, s.WeightSum)
	if err := entry.checkFinite(); err != nil {
		return nil, err
	}
	return entry, nil
}

func encodeCheckpoint(w io.Writer, snap *checkpointSnapshot, compress bool) error {
	if !compress {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	zw := gzip.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func decodeCheckpoint(r io.Reader) (*checkpointSnapshot, error) {
	var snap checkpointSnapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if snap.Version != checkpointFileVersion {
		return nil, errors.New("unsupported checkpoint version")
	}
	if err := snap.Training.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint training invalid: %w", err)
	}
	return &snap, nil
}

func isGzipPath(path string) bool {
	return strings.HasSuffix(path, ".gz")
}
