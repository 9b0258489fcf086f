package serve

import (
	"github.com/andrebq/sealgate/internal/cmdflags"
	"github.com/andrebq/sealgate/internal/httpserver"
	"github.com/andrebq/sealgate/internal/logutil"
	"github.com/andrebq/sealgate/internal/service"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	var store string
	var bind string
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the sealgate HTTP server",
		Flags: []cli.Flag{
			cmdflags.Store(&store),
			cmdflags.Bind(&bind),
		},
		Action: func(c *cli.Context) error {
			ctx, cfg, err := cmdflags.Load(c, store, bind)
			if err != nil {
				return err
			}
			keys, err := cfg.Keyring(ctx)
			if err != nil {
				return err
			}
			svc, err := service.Open(ctx, cfg, keys)
			if err != nil {
				return err
			}
			defer svc.Close()
			log := logutil.GetOrDefault(ctx)
			log.Info().
				Str("env", cfg.Env).
				Bool("registration.open", cfg.RegistrationOpen).
				Str("store", cfg.Store).
				Msg("Sealgate ready")
			return httpserver.Serve(ctx, cfg.Bind, svc.Handler(ctx))
		},
	}
}
