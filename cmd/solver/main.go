package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"
)

var cli struct {
	Debug     bool   `help:"enable debug logging"`
	LogFormat string `help:"log output format" enum:"console,json" default:"console"`

	Train  TrainCmd  `cmd:"" help:"run CFR on a game and write the average strategy as a blueprint"`
	Eval   EvalCmd   `cmd:"" help:"measure the exploitability of a blueprint"`
	Show   ShowCmd   `cmd:"" help:"print the strategies stored in a blueprint"`
	Export ExportCmd `cmd:"" help:"convert a blueprint to parquet"`
	Sample SampleCmd `cmd:"" help:"sample an action from a blueprint at a history"`
	Games  GamesCmd  `cmd:"" help:"list the built-in games"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("solver"),
		kong.Description("Counterfactual regret minimization for imperfect-information games"),
		kong.UsageOnError(),
	)

	log.Logger = setupLogger(cli.Debug, cli.LogFormat)
	runCtx := setupSignalHandler(log.Logger)

	ctx.BindTo(runCtx, (*context.Context)(nil))
	ctx.Bind(log.Logger)

	if err := ctx.Run(); err != nil {
		log.Fatal().Err(err).Msgf("%s failed", ctx.Command())
	}
}
