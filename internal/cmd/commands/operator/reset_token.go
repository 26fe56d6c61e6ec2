package operator

import (
	"flag"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/labelforge/labelforge/internal/cmd/base"
	"github.com/labelforge/labelforge/pkg/models"
)

type ResetTokenCommand struct {
	*base.Command

	flagConfig  string
	flagEmail   string
	flagVerbose bool
}

func (c *ResetTokenCommand) Synopsis() string {
	return "Rotate the API token of a user"
}

func (c *ResetTokenCommand) Help() string {
	return `Usage: labelforge operator reset-token -email=<email>

  This command replaces the API token of a user and prints the new key.
  The previous key stops working immediately.` +
		c.Flags().Help()
}

func (c *ResetTokenCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(
		flag.NewFlagSet("reset-token", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to labelforge config file",
	)
	f.StringVar(
		&c.flagEmail, "email", "", "(Required) Email address of the user.",
	)
	f.BoolVar(&c.flagVerbose, "verbose", false, "Log database queries.")

	return f
}

func (c *ResetTokenCommand) Run(args []string) int {
	logger, ui := c.Log, c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	if strings.TrimSpace(c.flagEmail) == "" {
		ui.Error("email flag is required")
		return 1
	}

	conn, err := openDB(c.flagConfig, c.flagVerbose, c.Command)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	user, token, err := resetToken(conn, c.flagEmail)
	if err != nil {
		ui.Error(fmt.Sprintf("error resetting token: %v", err))
		return 1
	}

	logger.Info("reset api token", "user_id", user.ID)
	ui.Output(token.Key)
	return 0
}

func resetToken(conn *gorm.DB, email string) (*models.User, *models.Token, error) {
	user := &models.User{}
	if err := user.GetByEmail(conn, email); err != nil {
		return nil, nil, fmt.Errorf("error finding user %q: %w", email, err)
	}
	token, err := models.ResetToken(conn, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, token, nil
}
