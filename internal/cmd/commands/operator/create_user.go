package operator

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/labelforge/labelforge/internal/cmd/base"
	"github.com/labelforge/labelforge/pkg/auth"
	"github.com/labelforge/labelforge/pkg/models"
	"github.com/labelforge/labelforge/pkg/roles"
)

const defaultOrganizationTitle = "Labelforge"

type CreateUserCommand struct {
	*base.Command

	flagConfig       string
	flagEmail        string
	flagPassword     string
	flagFirstName    string
	flagLastName     string
	flagRole         string
	flagOrganization string
	flagVerbose      bool
}

func (c *CreateUserCommand) Synopsis() string {
	return "Create a user, bootstrapping an organization if none exists"
}

func (c *CreateUserCommand) Help() string {
	return `Usage: labelforge operator create-user -email=<email> [options]

  This command creates an active user in the first organization, creating
  the organization when the database has none. The user gets the requested
  role and an API token, which is printed.` +
		c.Flags().Help()
}

func (c *CreateUserCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(
		flag.NewFlagSet("create-user", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to labelforge config file",
	)
	f.StringVar(
		&c.flagEmail, "email", "", "(Required) Email address of the user.",
	)
	f.StringVar(
		&c.flagPassword, "password", "",
		"Password for the login endpoint. Empty disables password login.",
	)
	f.StringVar(&c.flagFirstName, "first-name", "", "First name of the user.")
	f.StringVar(&c.flagLastName, "last-name", "", "Last name of the user.")
	f.StringVar(
		&c.flagRole, "role", roles.Administrator,
		"Role to assign (Administrator, Client or User).",
	)
	f.StringVar(
		&c.flagOrganization, "organization", defaultOrganizationTitle,
		"Title of the organization created when none exists.",
	)
	f.BoolVar(&c.flagVerbose, "verbose", false, "Log database queries.")

	return f
}

func (c *CreateUserCommand) Run(args []string) int {
	ui := c.UI

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

	res, err := createUser(conn, newUserOptions{
		Email:             c.flagEmail,
		Password:          c.flagPassword,
		FirstName:         c.flagFirstName,
		LastName:          c.flagLastName,
		Role:              c.flagRole,
		OrganizationTitle: c.flagOrganization,
	})
	if err != nil {
		ui.Error(fmt.Sprintf("error creating user: %v", err))
		return 1
	}

	if res.OrganizationCreated {
		ui.Info(fmt.Sprintf("Created organization %q (id %d)",
			res.Organization.Title, res.Organization.ID))
	}
	ui.Info(fmt.Sprintf("Created user %s (id %d) with role %s",
		res.User.Email, res.User.ID, res.Role))
	ui.Output(res.Token.Key)

	return 0
}

type newUserOptions struct {
	Email             string
	Password          string
	FirstName         string
	LastName          string
	Role              string
	OrganizationTitle string
}

type newUserResult struct {
	User                *models.User
	Organization        *models.Organization
	OrganizationCreated bool
	Role                string
	Token               *models.Token
}

// createUser creates the user with its organization membership, role and API
// token in one transaction.
func createUser(conn *gorm.DB, opts newUserOptions) (*newUserResult, error) {
	res := &newUserResult{
		Role: roles.NormalizeRole(opts.Role),
	}

	user := &models.User{
		Email:     strings.TrimSpace(opts.Email),
		FirstName: strings.TrimSpace(opts.FirstName),
		LastName:  strings.TrimSpace(opts.LastName),
		IsActive:  true,
	}
	if opts.Password != "" {
		hash, err := auth.HashPassword(opts.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	err := conn.Transaction(func(tx *gorm.DB) error {
		org, err := models.FirstOrganization(tx)
		switch {
		case err == nil:
		case errors.Is(err, gorm.ErrRecordNotFound):
			title := strings.TrimSpace(opts.OrganizationTitle)
			if title == "" {
				title = defaultOrganizationTitle
			}
			org = &models.Organization{Title: title}
			if err := org.Create(tx); err != nil {
				return fmt.Errorf("error creating organization: %w", err)
			}
			res.OrganizationCreated = true
		default:
			return fmt.Errorf("error finding organization: %w", err)
		}
		res.Organization = org

		user.ActiveOrganizationID = &org.ID
		if err := user.Create(tx); err != nil {
			return err
		}
		if res.OrganizationCreated {
			if err := tx.Model(org).Update("created_by_id", user.ID).Error; err != nil {
				return fmt.Errorf("error setting organization creator: %w", err)
			}
		}
		if _, _, err := org.AddUser(tx, user.ID); err != nil {
			return err
		}

		role, err := models.GetOrCreateRole(tx, res.Role)
		if err != nil {
			return fmt.Errorf("error creating role: %w", err)
		}
		if _, err := models.AssignRole(tx, user.ID, role.ID); err != nil {
			return fmt.Errorf("error assigning role: %w", err)
		}

		res.Token, err = models.IssueToken(tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	res.User = user
	return res, nil
}
