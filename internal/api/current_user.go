package api

import (
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/labelforge/labelforge/internal/server"
	"github.com/labelforge/labelforge/pkg/models"
)

// TokenResponse carries an API token key.
type TokenResponse struct {
	Token string `json:"token"`
}

// ResetTokenHandler rotates the API token of the requester.
func ResetTokenHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			respondMethodNotAllowed(w, srv.Logger, r.Method)
			return
		}
		user, ok := requestUser(srv, w, r)
		if !ok {
			return
		}

		token, err := models.ResetToken(srv.DB.WithContext(r.Context()), user.ID)
		if err != nil {
			srv.Logger.Error("error resetting token",
				"error", err,
				"user_id", user.ID,
			)
			respondDetail(w, srv.Logger, http.StatusInternalServerError,
				"Error resetting token")
			return
		}

		srv.Logger.Debug("new token issued",
			"user_id", user.ID,
			"token", token.Key,
		)
		respondJSON(w, srv.Logger, http.StatusCreated, TokenResponse{Token: token.Key})
	})
}

// GetTokenHandler returns the API token of the requester.
func GetTokenHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			respondMethodNotAllowed(w, srv.Logger, r.Method)
			return
		}
		user, ok := requestUser(srv, w, r)
		if !ok {
			return
		}

		token, err := models.GetToken(srv.DB.WithContext(r.Context()), user.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				respondNotFound(w, srv.Logger)
				return
			}
			srv.Logger.Error("error getting token",
				"error", err,
				"user_id", user.ID,
			)
			respondDetail(w, srv.Logger, http.StatusInternalServerError,
				"Error getting token")
			return
		}

		respondJSON(w, srv.Logger, http.StatusOK, TokenResponse{Token: token.Key})
	})
}

// WhoAmIHandler returns the requester's user object.
func WhoAmIHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			respondMethodNotAllowed(w, srv.Logger, r.Method)
			return
		}
		user, ok := requestUser(srv, w, r)
		if !ok {
			return
		}
		respondJSON(w, srv.Logger, http.StatusOK, newUserResponse(user))
	})
}
