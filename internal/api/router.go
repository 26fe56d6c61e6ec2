package api

import (
	"net/http"

	"github.com/labelforge/labelforge/internal/server"
	"github.com/labelforge/labelforge/pkg/avatars"
)

type route struct {
	pattern string
	handler func(server.Server) http.Handler
}

// NewRouter returns the HTTP handler for all labelforge endpoints.
func NewRouter(srv server.Server) http.Handler {
	mux := http.NewServeMux()

	authenticated := []route{
		{"/api/users", UsersHandler},
		{"/api/users/create_role_based", CreateRoleBasedHandler},
		{"/api/users/list_role_based", ListRoleBasedHandler},
		{"/api/users/{id}", UserHandler},
		{"/api/users/{id}/avatar", UserAvatarHandler},
		{"/api/current-user/reset-token", ResetTokenHandler},
		{"/api/current-user/token", GetTokenHandler},
		{"/api/current-user/whoami", WhoAmIHandler},
		{"/api/send-email", SendEmailHandler},
	}
	public := []route{
		{"/api/users/list_all", ListAllUsersHandler},
		{"/api/auth/login", LoginHandler},
		{"/health", HealthHandler},
	}

	for _, rt := range authenticated {
		handle(mux, srv, rt.pattern, AuthMiddleware(srv, rt.handler(srv)))
	}
	for _, rt := range public {
		handle(mux, srv, rt.pattern, rt.handler(srv))
	}

	if srv.Metrics != nil {
		mux.Handle("/metrics", srv.Metrics.Handler())
	}
	if local, ok := srv.Avatars.(*avatars.LocalStore); ok {
		mux.Handle(avatars.ServePath,
			srv.Metrics.Instrument(avatars.ServePath, local.Handler()))
	}

	return mux
}

// handle registers h for pattern with and without a trailing slash.
func handle(mux *http.ServeMux, srv server.Server, pattern string, h http.Handler) {
	h = srv.Metrics.Instrument(pattern, h)
	mux.Handle(pattern, h)
	mux.Handle(pattern+"/{$}", h)
}
