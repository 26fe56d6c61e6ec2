package operator

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"gorm.io/gorm"

	"github.com/labelforge/labelforge/internal/cmd/base"
	"github.com/labelforge/labelforge/internal/db"
	"github.com/labelforge/labelforge/pkg/database"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Perform operator-specific tasks"
}

func (c *Command) Help() string {
	return `Usage: labelforge operator <subcommand> [options] [args]

  This command groups subcommands for operators managing labelforge users.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}

// openDB loads the config file, or the defaults when path is empty, and
// connects to its database.
func openDB(path string, verbose bool, cmd *base.Command) (*gorm.DB, error) {
	cfg, err := base.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	var log hclog.Logger
	if verbose {
		log = cmd.Log.Named("db")
	}

	conn, err := db.NewDB(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	if err := database.Ping(context.Background(), conn); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return conn, nil
}
