package cmdflags

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andrebq/sealgate/auth"
	"github.com/andrebq/sealgate/internal/config"
	"github.com/andrebq/sealgate/internal/logutil"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

var readTerminalPassword = term.ReadPassword

// Load reads the environment configuration and applies the command line
// overrides. The returned context carries the process logger.
func Load(c *cli.Context, store, bind string) (context.Context, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if store != "" {
		cfg.Store = store
	}
	if bind != "" {
		cfg.Bind = bind
	}
	logger := logutil.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	return logutil.WithLogger(c.Context, logger), cfg, nil
}

// ReadPassword reads a single line from in. Passwords are never accepted
// as flags.
func ReadPassword(in io.Reader) (auth.PlainText, error) {
	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		if sc.Err() != nil {
			return nil, sc.Err()
		}
		return nil, errors.New("missing password from stdin")
	}
	password := strings.TrimSpace(sc.Text())
	if len(password) == 0 {
		return nil, errors.New("missing password from stdin")
	}
	return auth.PlainText(password), nil
}

// PromptPassword reads the password without echo when in is a terminal,
// otherwise it reads one line like ReadPassword.
func PromptPassword(in *os.File, prompt io.Writer) (auth.PlainText, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return ReadPassword(in)
	}
	fmt.Fprint(prompt, "Password: ")
	buf, err := readTerminalPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, errors.New("empty password")
	}
	return auth.PlainText(buf), nil
}
