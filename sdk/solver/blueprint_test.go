package solver

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/lox/cfrsolve/sdk/game"
	"github.com/lox/cfrsolve/sdk/games/kuhn"
)

func trainedBlueprint(t *testing.T, iterations int) (*Blueprint, game.Game) {
	t.Helper()
	g, err := kuhn.New(2)
	if err != nil {
		t.Fatalf("kuhn: %v", err)
	}
	cfg := DefaultTrainingConfig()
	cfg.Iterations = iterations
	cfg.EvalEvery = iterations
	trainer, err := NewTrainer(g, cfg)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	if err := trainer.Run(context.Background(), nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	return trainer.Blueprint(), g
}

func TestLoadBlueprintRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version-mismatch.json")

	bp := &Blueprint{
		Version:     blueprintFileVersion + 1,
		GeneratedAt: time.Now().UTC(),
		Iterations:  5,
		Strategies:  Profile{},
	}
	if err := bp.Save(path); err != nil {
		t.Fatalf("save blueprint: %v", err)
	}

	if _, err := LoadBlueprint(path); err == nil {
		t.Fatalf("expected version mismatch to fail")
	}
}

func TestLoadBlueprintRejectsMisalignedStrategies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "misaligned.json")

	bp := &Blueprint{
		Version:     blueprintFileVersion,
		GeneratedAt: time.Now().UTC(),
		Iterations:  1,
		Strategies: Profile{
			"I": {Player: 0, Actions: []game.Action{"a", "b"}, Probabilities: []float64{1}},
		},
	}
	if err := bp.Save(path); err != nil {
		t.Fatalf("save blueprint: %v", err)
	}

	if _, err := LoadBlueprint(path); err == nil {
		t.Fatalf("expected misaligned strategy to fail")
	}
}

func TestBlueprintRoundTrip(t *testing.T) {
	bp, g := trainedBlueprint(t, 200)
	if bp.Exploitability == nil {
		t.Fatalf("expected exploitability to be recorded")
	}

	path := filepath.Join(t.TempDir(), "kuhn.json")
	if err := bp.Save(path); err != nil {
		t.Fatalf("save blueprint: %v", err)
	}
	loaded, err := LoadBlueprint(path)
	if err != nil {
		t.Fatalf("load blueprint: %v", err)
	}

	if loaded.RunID != bp.RunID || loaded.Game != "kuhn" || loaded.Iterations != 200 {
		t.Fatalf("unexpected metadata: %+v", loaded)
	}
	if loaded.Status != StatusExhausted.String() {
		t.Fatalf("expected status %q, got %q", StatusExhausted, loaded.Status)
	}
	if len(loaded.Strategies) != len(bp.Strategies) {
		t.Fatalf("expected %d strategies, got %d", len(bp.Strategies), len(loaded.Strategies))
	}

	pol, ok := loaded.Strategy("0:2:pb")
	if !ok {
		t.Fatalf("expected strategy for king facing a bet")
	}
	if pol.Probability(kuhn.Bet) < 0.95 {
		t.Fatalf("king should almost always call, got %v", pol.Probabilities)
	}
	if _, ok := loaded.Strategy("missing"); ok {
		t.Fatalf("unexpected strategy for unknown infoset")
	}

	expl, err := loaded.Evaluate(g)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if math.Abs(expl-*bp.Exploitability) > 1e-12 {
		t.Fatalf("exploitability changed across save/load: %v vs %v", expl, *bp.Exploitability)
	}
}

func TestBlueprintEvaluateRejectsOtherGame(t *testing.T) {
	bp, _ := trainedBlueprint(t, 5)
	other, err := kuhn.New(3)
	if err != nil {
		t.Fatalf("kuhn: %v", err)
	}
	if _, err := bp.Evaluate(other); err == nil {
		t.Fatalf("expected game mismatch to fail")
	}
}

func TestBlueprintExportParquet(t *testing.T) {
	bp, _ := trainedBlueprint(t, 20)
	path := filepath.Join(t.TempDir(), "out", "kuhn.parquet")

	if err := bp.ExportParquet(path); err != nil {
		t.Fatalf("export: %v", err)
	}
	rows, err := parquet.ReadFile[StrategyRow](path)
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}

	want := bp.Rows()
	if len(rows) != len(want) || len(rows) != 2*len(bp.Strategies) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Fatalf("row %d: expected %+v, got %+v", i, want[i], rows[i])
		}
	}
	if rows[0].InfoSet != "0:0:" || rows[0].ActionIndex != 0 || rows[0].Action != string(kuhn.Pass) {
		t.Fatalf("rows not sorted by infoset then action: %+v", rows[0])
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	if v, ok := pf.Lookup("game"); !ok || v != "kuhn" {
		t.Fatalf("expected game metadata, got %q", v)
	}
	if v, ok := pf.Lookup("schema"); !ok || v != "strategy_row_v1" {
		t.Fatalf("expected schema metadata, got %q", v)
	}
}
