package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/labelforge/labelforge/internal/cmd/base"
	"github.com/labelforge/labelforge/internal/cmd/commands/operator"
	"github.com/labelforge/labelforge/internal/cmd/commands/server"
	"github.com/labelforge/labelforge/internal/cmd/commands/version"
)

// Commands is the mapping of all available labelforge commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := base.NewCommand(log, ui)

	Commands = map[string]cli.CommandFactory{
		"server": func() (cli.Command, error) {
			return &server.Command{
				Command: b,
			}, nil
		},
		"operator": func() (cli.Command, error) {
			return &operator.Command{
				Command: b,
			}, nil
		},
		"operator create-user": func() (cli.Command, error) {
			return &operator.CreateUserCommand{
				Command: b,
			}, nil
		},
		"operator reset-token": func() (cli.Command, error) {
			return &operator.ResetTokenCommand{
				Command: b,
			}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{
				Command: b,
			}, nil
		},
	}
}
