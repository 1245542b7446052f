package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lox/cfrsolve/sdk/solver"
)

type ExportCmd struct {
	Blueprint string `arg:"" help:"path to blueprint"`
	Out       string `short:"o" help:"parquet output path (defaults to the blueprint path with a .parquet extension)"`
}

func (cmd *ExportCmd) Run(logger zerolog.Logger) error {
	bp, err := solver.LoadBlueprint(cmd.Blueprint)
	if err != nil {
		return fmt.Errorf("load blueprint: %w", err)
	}
	out := cmd.Out
	if out == "" {
		out = strings.TrimSuffix(cmd.Blueprint, ".json") + ".parquet"
	}
	if err := bp.ExportParquet(out); err != nil {
		return fmt.Errorf("export parquet: %w", err)
	}
	logger.Info().
		Str("path", out).
		Int("infosets", len(bp.Strategies)).
		Int("rows", len(bp.Rows())).
		Msg("Parquet export written")
	return nil
}
