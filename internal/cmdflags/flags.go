package cmdflags

import (
	"github.com/urfave/cli/v2"
)

func Store(out *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "store",
		Aliases:     []string{"s", "db"},
		Usage:       "Path to the credential store, overrides SEALGATE_STORE",
		Destination: out,
		Value:       *out,
	}
}

func Bind(out *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "bind",
		Usage:       "Address to bind for incoming requests, overrides SEALGATE_BIND",
		Destination: out,
		Value:       *out,
	}
}

func Username(out *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "username",
		Aliases:     []string{"u", "user"},
		Usage:       "Name of the user",
		Destination: out,
		Required:    true,
	}
}
