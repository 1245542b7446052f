package solver

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/lox/cfrsolve/internal/fileutil"
)

// StrategyRow is one (information set, action) pair of an exported blueprint.
type StrategyRow struct {
	InfoSet     string  `parquet:"infoset,dict"`
	Player      int32   `parquet:"player"`
	ActionIndex int32   `parquet:"action_index"`
	Action      string  `parquet:"action,dict"`
	Probability float64 `parquet:"probability"`
}

// Rows flattens the blueprint into rows sorted by information set, then by
// action order.
func (b *Blueprint) Rows() []StrategyRow {
	if b == nil {
		return nil
	}
	var rows []StrategyRow
	for _, id := range b.Strategies.IDs() {
		pol := b.Strategies[id]
		for i, a := range pol.Actions {
			rows = append(rows, StrategyRow{
				InfoSet:     id,
				Player:      int32(pol.Player),
				ActionIndex: int32(i),
				Action:      string(a),
				Probability: pol.Probabilities[i],
			})
		}
	}
	return rows
}

// ExportParquet writes the blueprint as a zstd-compressed parquet file with
// one row per (information set, action).
func (b *Blueprint) ExportParquet(path string) error {
	if b == nil {
		return errors.New("nil blueprint")
	}
	rows := b.Rows()
	return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		writer := parquet.NewGenericWriter[StrategyRow](w,
			parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		)
		writer.SetKeyValueMetadata("schema", "strategy_row_v1")
		writer.SetKeyValueMetadata("game", b.Game)
		writer.SetKeyValueMetadata("run_id", b.RunID)
		writer.SetKeyValueMetadata("iterations", strconv.Itoa(b.Iterations))

		if _, err := writer.Write(rows); err != nil {
			writer.Close()
			return fmt.Errorf("write parquet rows: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("close parquet writer: %w", err)
		}
		return nil
	})
}
