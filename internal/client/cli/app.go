package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/bantx/internal/client/api"
	"github.com/dmitrijs2005/bantx/internal/client/config"
)

type App struct {
	config   *config.Config
	api      *api.Client
	reader   *bufio.Reader
	out      io.Writer
	userName string
}

func NewApp(c *config.Config) (*App, error) {
	client, err := api.New(c.ServerURL, c.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return &App{config: c, api: client, reader: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

func (a *App) isLoggedIn() bool {
	return a.api.LoggedIn()
}

func (a *App) status() string {
	if a.userName == "" {
		return ""
	}
	return "(" + a.userName + ")"
}

// Run executes the command in args, if any, and otherwise starts the REPL.
func (a *App) Run(ctx context.Context, args []string) error {
	if cmd := positional(args); len(cmd) > 0 {
		ok, err := dispatch(ctx, a, cmd[0])
		if !ok {
			return fmt.Errorf("unknown command %q", cmd[0])
		}
		return err
	}

	fmt.Fprintln(a.out, "BANTX CLI (type 'help' for commands)")
	runREPL(ctx, a, a.status, a.reader)
	return nil
}

// positional drops "-flag value" and "-flag=value" pairs from args.
func positional(args []string) []string {
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			if !strings.Contains(arg, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
			}
			continue
		}
		rest = append(rest, arg)
	}
	return rest
}
