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

const msgBadCredentials = "Invalid email or password"

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries a signed access token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LoginHandler exchanges an email and password for an access token.
func LoginHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			respondMethodNotAllowed(w, srv.Logger, r.Method)
			return
		}

		var req LoginRequest
		if err := decodeRequest(r, &req); err != nil {
			respondError(w, srv.Logger, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || req.Password == "" {
			respondError(w, srv.Logger, http.StatusUnauthorized, msgBadCredentials)
			return
		}

		user := &models.User{}
		if err := user.GetByEmail(srv.DB.WithContext(r.Context()), req.Email); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				srv.Logger.Error("error looking up user", "error", err)
				respondError(w, srv.Logger, http.StatusInternalServerError,
					"Error logging in")
				return
			}
			respondError(w, srv.Logger, http.StatusUnauthorized, msgBadCredentials)
			return
		}
		if !user.IsActive || user.PasswordHash == "" {
			respondError(w, srv.Logger, http.StatusUnauthorized, msgBadCredentials)
			return
		}

		ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
		if err != nil {
			srv.Logger.Warn("error verifying password",
				"error", err,
				"user_id", user.ID,
			)
		}
		if !ok {
			respondError(w, srv.Logger, http.StatusUnauthorized, msgBadCredentials)
			return
		}

		token, expiresAt, err := auth.IssueAccessToken(
			srv.Config.Auth.JWTSecret,
			user.ID,
			user.Email,
			srv.Config.Auth.JWTTTLDuration(),
			time.Now(),
		)
		if err != nil {
			srv.Logger.Error("error issuing access token",
				"error", err,
				"user_id", user.ID,
			)
			respondError(w, srv.Logger, http.StatusInternalServerError,
				"Error logging in")
			return
		}

		srv.Logger.Info("user logged in", "user_id", user.ID)
		respondJSON(w, srv.Logger, http.StatusOK, LoginResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresAt:   expiresAt,
		})
	})
}
