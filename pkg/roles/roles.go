package roles

import (
	"strings"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/labelforge/labelforge/pkg/models"
)

// Canonical role names.
const (
	Administrator = "Administrator"
	Client        = "Client"
	User          = "User"
)

var (
	adminRoleNames  = []string{"administrator", "admin"}
	clientRoleNames = []string{"client"}
)

// Resolver decides whether a user acts as an administrator or a client.
type Resolver struct {
	adminEmails  map[string]struct{}
	clientEmails map[string]struct{}
	log          hclog.Logger
}

// NewResolver creates a Resolver. Emails in adminEmails and clientEmails are
// matched case-insensitively and always resolve to that role.
func NewResolver(adminEmails, clientEmails []string, log hclog.Logger) *Resolver {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Resolver{
		adminEmails:  emailSet(adminEmails),
		clientEmails: emailSet(clientEmails),
		log:          log,
	}
}

func emailSet(emails []string) map[string]struct{} {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		set[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return set
}

// IsAdmin reports whether the user is an administrator. Lookup errors are
// logged and resolve to false.
func (r *Resolver) IsAdmin(db *gorm.DB, u *models.User) bool {
	if u == nil {
		return false
	}
	if _, ok := r.adminEmails[strings.ToLower(u.Email)]; ok {
		return true
	}
	if u.IsSuperuser || u.IsStaff {
		return true
	}

	has, err := models.HasActiveRole(db, u.ID, adminRoleNames...)
	if err != nil {
		r.log.Warn("error checking admin role",
			"error", err,
			"user_id", u.ID,
		)
		return false
	}
	return has
}

// IsClient reports whether the user is a client. Lookup errors are logged and
// resolve to false.
func (r *Resolver) IsClient(db *gorm.DB, u *models.User) bool {
	if u == nil {
		return false
	}
	if _, ok := r.clientEmails[strings.ToLower(u.Email)]; ok {
		return true
	}

	has, err := models.HasActiveRole(db, u.ID, clientRoleNames...)
	if err != nil {
		r.log.Warn("error checking client role",
			"error", err,
			"user_id", u.ID,
		)
		return false
	}
	return has
}

// Label returns "admin" for administrators and "client" for everyone else.
func (r *Resolver) Label(db *gorm.DB, u *models.User) string {
	if r.IsAdmin(db, u) {
		return "admin"
	}
	return "client"
}

// NormalizeRole maps role aliases to their canonical name. Unknown names are
// returned trimmed but otherwise unchanged, and empty names become User.
func NormalizeRole(name string) string {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "":
		return User
	case "admin", "administrator":
		return Administrator
	case "client":
		return Client
	case "user":
		return User
	}
	return name
}

// RoleForCreation returns the role a new user gets when created by the
// requester. Only administrators may choose a role.
func RoleForCreation(requestedRole string, requesterIsAdmin bool) string {
	if !requesterIsAdmin {
		return User
	}
	return NormalizeRole(requestedRole)
}
