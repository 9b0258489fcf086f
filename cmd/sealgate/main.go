package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/andrebq/sealgate/cmd/sealgate/keygen"
	"github.com/andrebq/sealgate/cmd/sealgate/serve"
	"github.com/andrebq/sealgate/cmd/sealgate/users"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "sealgate",
		Usage: "Session authenticated access control for web apps",
		Commands: []*cli.Command{
			serve.Cmd(),
			keygen.Cmd(),
			users.Cmd(),
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Error().Err(err).Msg("Application failed")
		os.Exit(1)
	}
}
