package server

import (
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/labelforge/labelforge/internal/config"
	"github.com/labelforge/labelforge/internal/ratelimit"
	"github.com/labelforge/labelforge/pkg/avatars"
	"github.com/labelforge/labelforge/pkg/metrics"
	"github.com/labelforge/labelforge/pkg/notifications"
	"github.com/labelforge/labelforge/pkg/permissions"
	"github.com/labelforge/labelforge/pkg/roles"
)

// Server contains the server configuration.
type Server struct {
	// Config is the config for the server.
	Config *config.Config

	// DB is the database for the server.
	DB *gorm.DB

	// Logger is the logger for the server.
	Logger hclog.Logger

	// Roles resolves administrator and client users.
	Roles *roles.Resolver

	// Permissions answers capability checks for the user endpoints.
	Permissions permissions.Checker

	// Dispatcher sends outbound email.
	Dispatcher notifications.Dispatcher

	// Avatars stores uploaded avatar images.
	Avatars avatars.Store

	// Metrics may be nil.
	Metrics *metrics.Metrics

	// EmailLimiter limits the email endpoint per requester. nil disables
	// limiting.
	EmailLimiter *ratelimit.KeyedLimiter
}
