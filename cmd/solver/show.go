package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lox/cfrsolve/sdk/solver"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	pureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Padding(0, 1)

	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type ShowCmd struct {
	Blueprint string `arg:"" help:"path to blueprint"`
	Player    int    `help:"only show this player's information sets (-1 shows all)" default:"-1"`
	Prefix    string `help:"only show information sets whose id starts with this prefix"`
	Limit     int    `help:"maximum rows to print (0 prints all)" default:"50"`
}

type strategyFilter struct {
	player int
	prefix string
	limit  int
}

func (cmd *ShowCmd) Run() error {
	bp, err := solver.LoadBlueprint(cmd.Blueprint)
	if err != nil {
		return fmt.Errorf("load blueprint: %w", err)
	}

	summary := fmt.Sprintf("%s  run %s  %d iterations  %d infosets  %s",
		bp.Game, bp.RunID, bp.Iterations, len(bp.Strategies), bp.Status)
	if bp.Exploitability != nil {
		summary += fmt.Sprintf("  exploitability %.6f", *bp.Exploitability)
	}
	fmt.Fprintln(os.Stdout, headerStyle.Render(summary))
	fmt.Fprintln(os.Stdout, renderStrategies(bp, strategyFilter{player: cmd.Player, prefix: cmd.Prefix, limit: cmd.Limit}))
	return nil
}

// renderStrategies draws one row per information set, ordered by id.
func renderStrategies(bp *solver.Blueprint, f strategyFilter) string {
	var rows [][]string
	for _, id := range bp.Strategies.IDs() {
		pol := bp.Strategies[id]
		if f.player >= 0 && int(pol.Player) != f.player {
			continue
		}
		if !strings.HasPrefix(id, f.prefix) {
			continue
		}
		if f.limit > 0 && len(rows) == f.limit {
			break
		}
		parts := make([]string, len(pol.Actions))
		for i, a := range pol.Actions {
			parts[i] = fmt.Sprintf("%s=%.3f", a, pol.Probabilities[i])
		}
		rows = append(rows, []string{id, pol.Player.String(), strings.Join(parts, "  "), strconv.FormatBool(isPure(pol))})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("INFOSET", "PLAYER", "STRATEGY", "PURE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 3 && rows[row][3] == "true":
				return pureStyle
			default:
				return cellStyle
			}
		})
	return t.Render()
}

func isPure(pol solver.InfoSetPolicy) bool {
	for _, p := range pol.Probabilities {
		if p > 0.999 {
			return true
		}
	}
	return false
}
