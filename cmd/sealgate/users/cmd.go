package users

import (
	"encoding/json"
	"os"

	"github.com/andrebq/sealgate/internal/cmdflags"
	"github.com/andrebq/sealgate/internal/logutil"
	"github.com/andrebq/sealgate/internal/service"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	var svc *service.Service
	var store string
	return &cli.Command{
		Name:  "users",
		Usage: "Manage the users kept in the credential store",
		Flags: []cli.Flag{
			cmdflags.Store(&store),
		},
		Before: func(c *cli.Context) error {
			ctx, cfg, err := cmdflags.Load(c, store, "")
			if err != nil {
				return err
			}
			c.Context = ctx
			svc, err = service.Open(ctx, cfg, nil)
			return err
		},
		After: func(c *cli.Context) error {
			if svc == nil {
				return nil
			}
			return svc.Close()
		},
		Subcommands: []*cli.Command{
			registerCmd(&svc),
			listCmd(&svc),
			deleteCmd(&svc),
			disableCmd(&svc, true),
			disableCmd(&svc, false),
			passwdCmd(&svc),
		},
	}
}

func registerCmd(svc **service.Service) *cli.Command {
	var username string
	return &cli.Command{
		Name:  "register",
		Usage: "Register a new user (password is read from stdin), works even if registration is closed",
		Flags: []cli.Flag{
			cmdflags.Username(&username),
		},
		Action: func(c *cli.Context) error {
			passwd, err := cmdflags.PromptPassword(os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			program := (*svc).Program
			program.SetRegistrationOpen(true)
			profile, err := program.Register(c.Context, username, passwd)
			if err != nil {
				return err
			}
			return json.NewEncoder(c.App.Writer).Encode(profile)
		},
	}
}

func listCmd(svc **service.Service) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List all users, one JSON object per line",
		Action: func(c *cli.Context) error {
			users, err := (*svc).Store.ListUsers(c.Context)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.App.Writer)
			for _, u := range users {
				if err := enc.Encode(u); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func deleteCmd(svc **service.Service) *cli.Command {
	var username string
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete a user, sessions issued to it stop working immediately",
		Flags: []cli.Flag{
			cmdflags.Username(&username),
		},
		Action: func(c *cli.Context) error {
			id, err := lookupID(c, *svc, username)
			if err != nil {
				return err
			}
			return (*svc).Program.Delete(c.Context, id)
		},
	}
}

func disableCmd(svc **service.Service, disabled bool) *cli.Command {
	var username string
	name, usage := "enable", "Enable a previously disabled user"
	if disabled {
		name, usage = "disable", "Disable a user without deleting it, its sessions stop working immediately"
	}
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			cmdflags.Username(&username),
		},
		Action: func(c *cli.Context) error {
			id, err := lookupID(c, *svc, username)
			if err != nil {
				return err
			}
			return (*svc).Program.SetDisabled(c.Context, id, disabled)
		},
	}
}

func passwdCmd(svc **service.Service) *cli.Command {
	var username string
	return &cli.Command{
		Name:  "passwd",
		Usage: "Replace the password of a user (new password is read from stdin)",
		Flags: []cli.Flag{
			cmdflags.Username(&username),
		},
		Action: func(c *cli.Context) error {
			id, err := lookupID(c, *svc, username)
			if err != nil {
				return err
			}
			passwd, err := cmdflags.PromptPassword(os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			return (*svc).Program.SetPassword(c.Context, id, passwd)
		},
	}
}

func lookupID(c *cli.Context, svc *service.Service, username string) (string, error) {
	creds, err := svc.Store.LookupCredentials(c.Context, username)
	if err != nil {
		log := logutil.GetOrDefault(c.Context)
		log.Error().Err(err).Str("username", username).Msg("Unable to find user")
		return "", err
	}
	return creds.ID, nil
}
