package solver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lox/cfrsolve/internal/fileutil"
	"github.com/lox/cfrsolve/sdk/game"
)

const blueprintFileVersion = 1

// Blueprint captures the averaged strategies produced by a solver run so that
// runtime policies can sample actions without rerunning CFR.
type Blueprint struct {
	Version        int       `json:"version"`
	GeneratedAt    time.Time `json:"generated_at"`
	RunID          string    `json:"run_id"`
	Game           string    `json:"game"`
	Players        int       `json:"players"`
	Iterations     int       `json:"iterations"`
	Status         string    `json:"status"`
	Exploitability *float64  `json:"exploitability,omitempty"`
	Strategies     Profile   `json:"strategies"`
}

// Save writes the blueprint to disk in JSON format.
func (b *Blueprint) Save(path string) error {
	if b == nil {
		return errors.New("nil blueprint")
	}
	if path == "" {
		return errors.New("destination path is required")
	}
	return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	})
}

// LoadBlueprint reads a blueprint from disk and checks that every stored
// distribution lines up with its action set.
func LoadBlueprint(path string) (*Blueprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bp Blueprint
	if err := json.NewDecoder(f).Decode(&bp); err != nil {
		return nil, err
	}
	if bp.Version != blueprintFileVersion {
		return nil, errors.New("unsupported blueprint version")
	}
	for id, pol := range bp.Strategies {
		if len(pol.Actions) == 0 || len(pol.Actions) != len(pol.Probabilities) {
			return nil, fmt.Errorf("blueprint infoset %q has %d actions and %d probabilities", id, len(pol.Actions), len(pol.Probabilities))
		}
	}
	return &bp, nil
}

// Strategy returns the stored average strategy for the provided info-set key.
func (b *Blueprint) Strategy(id string) (InfoSetPolicy, bool) {
	if b == nil {
		return InfoSetPolicy{}, false
	}
	pol, ok := b.Strategies[id]
	return pol, ok
}

// Profile returns the blueprint's strategies as a profile for evaluation.
func (b *Blueprint) Profile() Profile {
	if b == nil {
		return nil
	}
	return b.Strategies
}

// Evaluate recomputes exploitability of the stored strategies against g.
func (b *Blueprint) Evaluate(g game.Game) (float64, error) {
	if b == nil {
		return 0, errors.New("nil blueprint")
	}
	if b.Game != "" && b.Game != g.Name() {
		return 0, fmt.Errorf("blueprint is for game %q, not %q", b.Game, g.Name())
	}
	return Exploitability(g, b.Strategies)
}
