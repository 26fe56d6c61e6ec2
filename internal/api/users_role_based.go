package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"gorm.io/gorm"

	"github.com/labelforge/labelforge/internal/server"
	"github.com/labelforge/labelforge/pkg/models"
	"github.com/labelforge/labelforge/pkg/roles"
)

// CreateRoleBasedRequest is the body of POST /api/users/create_role_based/.
type CreateRoleBasedRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// CreateRoleBasedResponse is returned for a user created by role.
type CreateRoleBasedResponse struct {
	ID                 uint   `json:"id"`
	Email              string `json:"email"`
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	Username           string `json:"username"`
	ActiveOrganization *uint  `json:"active_organization"`
	CreatedBy          *uint  `json:"created_by"`
	Role               string `json:"role"`
	Message            string `json:"message"`
}

// CreateRoleBasedHandler creates a user in the first organization with a
// role chosen by the requester. Only administrators may pick the role.
func CreateRoleBasedHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			respondMethodNotAllowed(w, srv.Logger, r.Method)
			return
		}
		requester, ok := requestUser(srv, w, r)
		if !ok {
			return
		}
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"user_id", requester.ID,
		}

		var req CreateRoleBasedRequest
		if err := decodeRequest(r, &req); err != nil {
			srv.Logger.Warn("error decoding request",
				append([]any{"error", err}, logArgs...)...)
			respondError(w, srv.Logger, http.StatusBadRequest,
				fmt.Sprintf("Invalid request body: %v", err))
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		req.FirstName = strings.TrimSpace(req.FirstName)
		req.LastName = strings.TrimSpace(req.LastName)
		req.Role = strings.TrimSpace(req.Role)

		db := srv.DB.WithContext(r.Context())

		org, err := models.FirstOrganization(db)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				respondError(w, srv.Logger, http.StatusBadRequest, "No organization found")
				return
			}
			srv.Logger.Error("error finding organization",
				append([]any{"error", err}, logArgs...)...)
			respondError(w, srv.Logger, http.StatusInternalServerError,
				fmt.Sprintf("Failed to create user: %v", err))
			return
		}

		if req.Email == "" {
			respondError(w, srv.Logger, http.StatusBadRequest, "Email is required")
			return
		}

		exists, err := models.EmailExists(db, req.Email)
		if err != nil {
			srv.Logger.Error("error checking email",
				append([]any{"error", err}, logArgs...)...)
			respondError(w, srv.Logger, http.StatusInternalServerError,
				fmt.Sprintf("Failed to create user: %v", err))
			return
		}
		if exists {
			respondError(w, srv.Logger, http.StatusBadRequest,
				"User with this email already exists")
			return
		}

		isAdmin := srv.Roles.IsAdmin(db, requester)
		roleName := roles.RoleForCreation(req.Role, isAdmin)

		newUser := &models.User{
			Email:                req.Email,
			Username:             req.Email,
			FirstName:            req.FirstName,
			LastName:             req.LastName,
			IsActive:             true,
			ActiveOrganizationID: &org.ID,
		}
		if !isAdmin {
			newUser.CreatedByID = &requester.ID
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := newUser.Create(tx); err != nil {
				return err
			}

			// A failed role assignment must not abort the user creation.
			if err := tx.SavePoint("role_assignment").Error; err != nil {
				return err
			}
			if err := assignRole(tx, newUser.ID, roleName); err != nil {
				srv.Logger.Warn("error assigning role",
					append([]any{
						"error", err,
						"role", roleName,
						"new_user_id", newUser.ID,
					}, logArgs...)...)
				if err := tx.RollbackTo("role_assignment").Error; err != nil {
					return err
				}
			}

			if _, _, err := org.AddUser(tx, newUser.ID); err != nil {
				return err
			}
			if _, err := models.IssueToken(tx, newUser.ID); err != nil {
				return err
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, models.ErrEmailExists) {
				respondError(w, srv.Logger, http.StatusBadRequest,
					"User with this email already exists")
				return
			}
			srv.Logger.Error("error creating user",
				append([]any{"error", err}, logArgs...)...)
			respondError(w, srv.Logger, http.StatusInternalServerError,
				fmt.Sprintf("Failed to create user: %v", err))
			return
		}

		srv.Metrics.UserCreated("role_based")
		srv.Logger.Info("created user",
			append([]any{
				"new_user_id", newUser.ID,
				"role", roleName,
			}, logArgs...)...)

		respondJSON(w, srv.Logger, http.StatusCreated, CreateRoleBasedResponse{
			ID:                 newUser.ID,
			Email:              newUser.Email,
			FirstName:          newUser.FirstName,
			LastName:           newUser.LastName,
			Username:           newUser.Username,
			ActiveOrganization: newUser.ActiveOrganizationID,
			CreatedBy:          newUser.CreatedByID,
			Role:               roleName,
			Message:            "User created successfully",
		})
	})
}

func assignRole(tx *gorm.DB, userID uint, roleName string) error {
	role, err := models.GetOrCreateRole(tx, roleName)
	if err != nil {
		return err
	}
	_, err = models.AssignRole(tx, userID, role.ID)
	return err
}

// ListAllUsersHandler lists all organization memberships without
// authentication. It is only enabled by configuration.
func ListAllUsersHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !srv.Config.Auth.PublicUserListing {
			respondNotFound(w, srv.Logger)
			return
		}
		if r.Method != "GET" {
			respondMethodNotAllowed(w, srv.Logger, r.Method)
			return
		}

		page, pageSize, err := pagination(r)
		if err != nil {
			respondError(w, srv.Logger, http.StatusBadRequest, "Invalid pagination parameters")
			return
		}

		members, count, err := models.ListMemberships(
			srv.DB.WithContext(r.Context()),
			models.MembershipFilter{},
			(page-1)*pageSize, pageSize,
		)
		if err != nil {
			srv.Logger.Error("error listing users",
				"error", err,
				"path", r.URL.Path,
			)
			respondError(w, srv.Logger, http.StatusInternalServerError,
				fmt.Sprintf("Failed to list users: %v", err))
			return
		}

		respondJSON(w, srv.Logger, http.StatusOK, MembershipListResponse{
			Results:    newMembershipEntries(members, false),
			Count:      count,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages(count, pageSize),
			Message:    "Users retrieved successfully",
		})
	})
}

// ListRoleBasedHandler lists memberships visible to the requester:
// administrators see everyone, other users see the users they created.
func ListRoleBasedHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			respondMethodNotAllowed(w, srv.Logger, r.Method)
			return
		}
		requester, ok := requestUser(srv, w, r)
		if !ok {
			return
		}

		page, pageSize, err := pagination(r)
		if err != nil {
			respondError(w, srv.Logger, http.StatusBadRequest, "Invalid pagination parameters")
			return
		}

		q := r.URL.Query()
		filter := models.MembershipFilter{
			Search:   strings.TrimSpace(q.Get("search")),
			Activity: models.ActivityAll,
		}
		if v := strings.TrimSpace(q.Get("user_filter")); v != "" {
			filter.Activity = models.ActivityFilter(v)
		}
		for _, p := range []struct {
			name string
			dst  **time.Time
		}{
			{"joined_after", &filter.JoinedAfter},
			{"joined_before", &filter.JoinedBefore},
		} {
			v := strings.TrimSpace(q.Get(p.name))
			if v == "" {
				continue
			}
			t, err := dateparse.ParseAny(v)
			if err != nil {
				respondError(w, srv.Logger, http.StatusBadRequest,
					fmt.Sprintf("Invalid %s date: %s", p.name, v))
				return
			}
			*p.dst = &t
		}

		db := srv.DB.WithContext(r.Context())
		isAdmin := srv.Roles.IsAdmin(db, requester)
		if !isAdmin {
			filter.CreatedBy = &requester.ID
		}

		members, count, err := models.ListMemberships(
			db, filter, (page-1)*pageSize, pageSize)
		if err != nil {
			srv.Logger.Error("error listing users",
				"error", err,
				"user_id", requester.ID,
			)
			respondError(w, srv.Logger, http.StatusInternalServerError,
				fmt.Sprintf("Failed to list users: %v", err))
			return
		}

		respondJSON(w, srv.Logger, http.StatusOK, MembershipListResponse{
			Results:    newMembershipEntries(members, true),
			Count:      count,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages(count, pageSize),
			UserRole:   srv.Roles.Label(db, requester),
			Message:    "Users retrieved successfully",
		})
	})
}
