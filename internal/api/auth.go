package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/labelforge/labelforge/internal/server"
	"github.com/labelforge/labelforge/pkg/auth"
	"github.com/labelforge/labelforge/pkg/models"
)

// activityInterval is the minimum time between last_activity updates of a
// user.
const activityInterval = time.Minute

const (
	msgNoCredentials = "Authentication credentials were not provided."
	msgInvalidToken  = "Invalid token."
	msgInactiveUser  = "User inactive or deleted."
)

var (
	errNoCredentials = errors.New(msgNoCredentials)
	errInvalidToken  = errors.New(msgInvalidToken)
	errInactiveUser  = errors.New(msgInactiveUser)
)

// AuthMiddleware authenticates requests with an API token
// ("Authorization: Token <key>") or an access token
// ("Authorization: Bearer <jwt>") and stores the user in the request context.
func AuthMiddleware(srv server.Server, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		user, err := authenticate(srv, r)
		if err != nil {
			srv.Logger.Debug("authentication failed",
				append([]any{"error", err}, logArgs...)...)
			w.Header().Set("WWW-Authenticate", `Token realm="api"`)
			respondDetail(w, srv.Logger, http.StatusUnauthorized, err.Error())
			return
		}

		touchActivity(srv, user)

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

func authenticate(srv server.Server, r *http.Request) (*models.User, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return nil, errNoCredentials
	}

	scheme, credential, ok := strings.Cut(header, " ")
	credential = strings.TrimSpace(credential)
	if !ok || credential == "" {
		return nil, errInvalidToken
	}

	db := srv.DB.WithContext(r.Context())

	var user *models.User
	switch strings.ToLower(scheme) {
	case "token":
		u, err := models.UserByTokenKey(db, credential)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				srv.Logger.Error("error looking up token", "error", err)
			}
			return nil, errInvalidToken
		}
		user = u

	case "bearer":
		claims, err := auth.ParseAccessToken(credential, srv.Config.Auth.JWTSecret)
		if err != nil {
			return nil, errInvalidToken
		}
		id, err := claims.UserID()
		if err != nil {
			return nil, errInvalidToken
		}
		u := &models.User{ID: id}
		if err := u.Get(db); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				srv.Logger.Error("error looking up user", "error", err, "user_id", id)
			}
			return nil, errInvalidToken
		}
		user = u

	default:
		return nil, errNoCredentials
	}

	if !user.IsActive {
		return nil, errInactiveUser
	}
	return user, nil
}

// touchActivity records activity for user unless it was recorded within
// activityInterval.
func touchActivity(srv server.Server, user *models.User) {
	now := time.Now().UTC()
	if user.LastActivity != nil && now.Sub(*user.LastActivity) < activityInterval {
		return
	}
	if err := user.TouchLastActivity(srv.DB, now); err != nil {
		srv.Logger.Warn("error updating last activity",
			"error", err,
			"user_id", user.ID,
		)
	}
}

// requestUser returns the authenticated user. Handlers behind AuthMiddleware
// always have one; a missing user is answered with 401.
func requestUser(srv server.Server, w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		srv.Logger.Error("user not found in request context",
			"method", r.Method,
			"path", r.URL.Path,
		)
		respondDetail(w, srv.Logger, http.StatusUnauthorized, msgNoCredentials)
		return nil, false
	}
	return user, true
}
