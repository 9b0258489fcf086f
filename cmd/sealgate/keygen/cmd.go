package keygen

import (
	"crypto/rand"
	"fmt"

	"github.com/andrebq/sealgate/auth"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Print a new random session secret, suitable for SEALGATE_SECRET",
		Action: func(c *cli.Context) error {
			k, err := auth.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			defer k.Zero()
			_, err = fmt.Fprintln(c.App.Writer, auth.EncodeKey(k))
			return err
		},
	}
}
