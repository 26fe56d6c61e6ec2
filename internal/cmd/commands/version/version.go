package version

import (
	"github.com/labelforge/labelforge/internal/cmd/base"
	"github.com/labelforge/labelforge/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the labelforge version"
}

func (c *Command) Help() string {
	return `Usage: labelforge version

  Print the version of the labelforge binary.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output("labelforge " + version.String())
	return 0
}
