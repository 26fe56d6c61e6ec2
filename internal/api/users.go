package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/hashicorp/go-multierror"
	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
	"gorm.io/gorm"

	"github.com/labelforge/labelforge/internal/server"
	"github.com/labelforge/labelforge/pkg/auth"
	"github.com/labelforge/labelforge/pkg/models"
	"github.com/labelforge/labelforge/pkg/permissions"
)

// readOnlyUserFields cannot be changed through PATCH.
var readOnlyUserFields = map[string]struct{}{
	"id":                  {},
	"email":               {},
	"date_joined":         {},
	"last_activity":       {},
	"avatar":              {},
	"initials":            {},
	"active_organization": {},
}

// UserCreateRequest is the body of POST /api/users/.
type UserCreateRequest struct {
	Email            string `json:"email"`
	Username         string `json:"username,omitempty"`
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	Phone            string `json:"phone,omitempty"`
	AllowNewsletters *bool  `json:"allow_newsletters,omitempty"`
	Password         string `json:"password,omitempty"`
}

func (r UserCreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat,
			validation.Length(0, 254)),
		validation.Field(&r.Username, validation.Length(0, 256)),
		validation.Field(&r.FirstName, validation.Length(0, 256)),
		validation.Field(&r.LastName, validation.Length(0, 256)),
		validation.Field(&r.Phone, validation.Length(0, 256)),
		validation.Field(&r.Password, validation.Length(8, 256)),
	)
}

// userPatch holds the writable fields of a partial update. nil fields are
// left unchanged.
type userPatch struct {
	Username         *string `mapstructure:"username"`
	FirstName        *string `mapstructure:"first_name"`
	LastName         *string `mapstructure:"last_name"`
	Phone            *string `mapstructure:"phone"`
	AllowNewsletters *bool   `mapstructure:"allow_newsletters"`
}

// usersQuery returns the users visible to the requester: members of the
// requester's active organization, further limited to users the requester
// created unless they are an administrator. ok is false when the requester
// has no active organization and therefore sees nobody.
func usersQuery(db *gorm.DB, requester *models.User, isAdmin bool) (q *gorm.DB, ok bool) {
	if requester.ActiveOrganizationID == nil {
		return nil, false
	}
	q = db.Model(&models.User{}).
		Scopes(models.InOrganization(*requester.ActiveOrganizationID))
	if !isAdmin {
		q = q.Scopes(models.CreatedBy(requester.ID))
	}
	return q, true
}

// findVisibleUser loads the user with id from the requester's queryset.
func findVisibleUser(
	db *gorm.DB, requester *models.User, isAdmin bool, id uint,
) (*models.User, error) {
	q, ok := usersQuery(db, requester, isAdmin)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	u := &models.User{}
	if err := q.Where("users.id = ?", id).First(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// checkCapability answers 403 and returns false if the requester lacks the
// capability required for the request method.
func checkCapability(
	srv server.Server, w http.ResponseWriter, r *http.Request,
	user *models.User, perms permissions.MethodPermissions, resource any,
) bool {
	capability, ok := perms.For(r.Method)
	if !ok {
		respondMethodNotAllowed(w, srv.Logger, r.Method)
		return false
	}
	if !srv.Permissions.Has(r.Context(), user, capability, resource) {
		srv.Logger.Warn("permission denied",
			"method", r.Method,
			"path", r.URL.Path,
			"user_id", user.ID,
			"capability", capability,
		)
		respondForbidden(w, srv.Logger)
		return false
	}
	return true
}

func pathUserID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// UsersHandler lists and creates users.
func UsersHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := requestUser(srv, w, r)
		if !ok {
			return
		}
		if !checkCapability(srv, w, r, user, permissions.UserMethodPermissions, nil) {
			return
		}

		switch r.Method {
		case "GET", "HEAD":
			listUsers(srv, w, r, user)
		case "POST":
			createUser(srv, w, r, user)
		default:
			respondMethodNotAllowed(w, srv.Logger, r.Method)
		}
	})
}

func listUsers(srv server.Server, w http.ResponseWriter, r *http.Request, requester *models.User) {
	db := srv.DB.WithContext(r.Context())
	isAdmin := srv.Roles.IsAdmin(db, requester)

	users := models.Users{}
	if q, ok := usersQuery(db, requester, isAdmin); ok {
		if err := q.Order("users.id ASC").Find(&users).Error; err != nil {
			srv.Logger.Error("error listing users",
				"error", err,
				"user_id", requester.ID,
			)
			respondDetail(w, srv.Logger, http.StatusInternalServerError,
				"Error listing users")
			return
		}
	}

	resp := make([]UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, newUserResponse(&users[i]))
	}
	respondJSON(w, srv.Logger, http.StatusOK, resp)
}

func createUser(srv server.Server, w http.ResponseWriter, r *http.Request, requester *models.User) {
	logArgs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"user_id", requester.ID,
	}

	var req UserCreateRequest
	if err := decodeRequest(r, &req); err != nil {
		srv.Logger.Warn("error decoding request",
			append([]any{"error", err}, logArgs...)...)
		respondDetail(w, srv.Logger, http.StatusBadRequest,
			fmt.Sprintf("JSON parse error: %v", err))
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)

	if err := req.Validate(); err != nil {
		if body, ok := fieldErrors(err); ok {
			respondJSON(w, srv.Logger, http.StatusBadRequest, body)
			return
		}
		respondDetail(w, srv.Logger, http.StatusBadRequest, err.Error())
		return
	}

	db := srv.DB.WithContext(r.Context())
	isAdmin := srv.Roles.IsAdmin(db, requester)

	newUser := &models.User{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		IsActive:  true,
	}
	if req.AllowNewsletters != nil {
		newUser.AllowNewsletters = *req.AllowNewsletters
	}
	if !isAdmin {
		newUser.CreatedByID = &requester.ID
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			srv.Logger.Error("error hashing password",
				append([]any{"error", err}, logArgs...)...)
			respondDetail(w, srv.Logger, http.StatusInternalServerError,
				"Error creating user")
			return
		}
		newUser.PasswordHash = hash
	}

	org, err := bootstrapOrganization(db, requester)
	if err != nil {
		srv.Logger.Error("error finding organization",
			append([]any{"error", err}, logArgs...)...)
		respondDetail(w, srv.Logger, http.StatusInternalServerError,
			"Error creating user")
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := newUser.Create(tx); err != nil {
			return err
		}
		if org != nil {
			if _, _, err := org.AddUser(tx, newUser.ID); err != nil {
				return err
			}
			if newUser.ActiveOrganizationID == nil {
				if err := newUser.SetActiveOrganization(tx, org.ID); err != nil {
					return fmt.Errorf("error setting active organization: %w", err)
				}
			}
		}
		if _, err := models.IssueToken(tx, newUser.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrEmailExists):
			respondJSON(w, srv.Logger, http.StatusBadRequest, map[string][]string{
				"email": {"user with this email already exists."},
			})
		case errors.Is(err, models.ErrUsernameExists):
			respondJSON(w, srv.Logger, http.StatusBadRequest, map[string][]string{
				"username": {"user with this username already exists."},
			})
		default:
			if body, ok := fieldErrors(err); ok {
				respondJSON(w, srv.Logger, http.StatusBadRequest, body)
				return
			}
			srv.Logger.Error("error creating user",
				append([]any{"error", err}, logArgs...)...)
			respondDetail(w, srv.Logger, http.StatusInternalServerError,
				"Error creating user")
		}
		return
	}

	srv.Metrics.UserCreated("api")
	srv.Logger.Info("created user",
		append([]any{"new_user_id", newUser.ID}, logArgs...)...)

	respondJSON(w, srv.Logger, http.StatusCreated, newUserResponse(newUser))
}

// bootstrapOrganization returns the organization a user created by requester
// joins: the requester's active organization, else the first organization
// the requester belongs to. nil means there is none.
func bootstrapOrganization(db *gorm.DB, requester *models.User) (*models.Organization, error) {
	if requester.ActiveOrganizationID != nil {
		org := &models.Organization{ID: *requester.ActiveOrganizationID}
		err := org.Get(db)
		if err == nil {
			return org, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	org, err := models.FindOrganizationByUser(db, requester.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return org, err
}

// UserHandler retrieves, updates and deletes a single user.
func UserHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := requestUser(srv, w, r)
		if !ok {
			return
		}
		if !checkCapability(srv, w, r, user, permissions.UserMethodPermissions, nil) {
			return
		}

		id, ok := pathUserID(r)
		if !ok {
			respondNotFound(w, srv.Logger)
			return
		}

		switch r.Method {
		case "GET", "HEAD", "PATCH", "DELETE":
		default:
			respondMethodNotAllowed(w, srv.Logger, r.Method)
			return
		}

		db := srv.DB.WithContext(r.Context())
		isAdmin := srv.Roles.IsAdmin(db, user)

		target, err := findVisibleUser(db, user, isAdmin, id)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				srv.Logger.Error("error getting user",
					"error", err,
					"id", id,
				)
			}
			respondNotFound(w, srv.Logger)
			return
		}

		switch r.Method {
		case "GET", "HEAD":
			respondJSON(w, srv.Logger, http.StatusOK, newUserResponse(target))
		case "PATCH":
			patchUser(srv, w, r, user, target)
		case "DELETE":
			deleteUser(srv, w, r, user, target)
		}
	})
}

func patchUser(
	srv server.Server, w http.ResponseWriter, r *http.Request,
	requester, target *models.User,
) {
	logArgs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"user_id", requester.ID,
		"target_id", target.ID,
	}

	var raw map[string]any
	if err := decodeRequest(r, &raw); err != nil {
		srv.Logger.Warn("error decoding request",
			append([]any{"error", err}, logArgs...)...)
		respondDetail(w, srv.Logger, http.StatusBadRequest,
			fmt.Sprintf("JSON parse error: %v", err))
		return
	}

	body := make(map[string]any, len(raw))
	for k, v := range raw {
		body[strcase.ToSnake(k)] = v
	}

	if field, err := readOnlyViolations(body); err != nil {
		srv.Logger.Warn("rejected read-only field update",
			append([]any{"error", err}, logArgs...)...)
		respondDetail(w, srv.Logger, http.StatusMethodNotAllowed,
			"Cannot update read-only field: "+field)
		return
	}

	var patch userPatch
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &patch,
		TagName: "mapstructure",
	})
	if err != nil {
		srv.Logger.Error("error creating decoder",
			append([]any{"error", err}, logArgs...)...)
		respondDetail(w, srv.Logger, http.StatusInternalServerError,
			"Error updating user")
		return
	}
	if err := dec.Decode(body); err != nil {
		respondDetail(w, srv.Logger, http.StatusBadRequest, err.Error())
		return
	}

	if patch.Username != nil {
		target.Username = strings.TrimSpace(*patch.Username)
	}
	if patch.FirstName != nil {
		target.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		target.LastName = *patch.LastName
	}
	if patch.Phone != nil {
		target.Phone = *patch.Phone
	}

	db := srv.DB.WithContext(r.Context())

	if patch.AllowNewsletters != nil {
		target.AllowNewsletters = *patch.AllowNewsletters

		prefs, err := models.NewJSON(map[string]any{
			"email":                requester.Email,
			"allow_newsletters":    *patch.AllowNewsletters,
			"update-notifications": 1,
			"new-user":             0,
		})
		if err != nil {
			srv.Logger.Error("error encoding preferences",
				append([]any{"error", err}, logArgs...)...)
			respondDetail(w, srv.Logger, http.StatusInternalServerError,
				"Error updating user")
			return
		}

		if requester.ID == target.ID {
			target.AdvancedJSON = prefs
		} else {
			requester.AdvancedJSON = prefs
			if err := requester.Save(db); err != nil {
				srv.Logger.Error("error saving preferences",
					append([]any{"error", err}, logArgs...)...)
				respondDetail(w, srv.Logger, http.StatusInternalServerError,
					"Error updating user")
				return
			}
		}
	}

	if err := target.Save(db); err != nil {
		switch {
		case errors.Is(err, models.ErrUsernameExists):
			respondJSON(w, srv.Logger, http.StatusBadRequest, map[string][]string{
				"username": {"user with this username already exists."},
			})
		default:
			if body, ok := fieldErrors(err); ok {
				respondJSON(w, srv.Logger, http.StatusBadRequest, body)
				return
			}
			srv.Logger.Error("error saving user",
				append([]any{"error", err}, logArgs...)...)
			respondDetail(w, srv.Logger, http.StatusInternalServerError,
				"Error updating user")
		}
		return
	}

	respondJSON(w, srv.Logger, http.StatusOK, newUserResponse(target))
}

// readOnlyViolations returns the first read-only key of body, in sorted
// order, and an error listing all of them.
func readOnlyViolations(body map[string]any) (string, error) {
	var fields []string
	for k := range body {
		if _, ok := readOnlyUserFields[k]; ok {
			fields = append(fields, k)
		}
	}
	if len(fields) == 0 {
		return "", nil
	}
	sort.Strings(fields)

	var result *multierror.Error
	for _, f := range fields {
		result = multierror.Append(result,
			fmt.Errorf("cannot update read-only field: %s", f))
	}
	return fields[0], result.ErrorOrNil()
}

func deleteUser(
	srv server.Server, w http.ResponseWriter, r *http.Request,
	requester, target *models.User,
) {
	db := srv.DB.WithContext(r.Context())
	avatarURL := target.Avatar

	if err := target.Delete(db); err != nil {
		srv.Logger.Error("error deleting user",
			"error", err,
			"user_id", requester.ID,
			"target_id", target.ID,
		)
		respondDetail(w, srv.Logger, http.StatusInternalServerError,
			"Error deleting user")
		return
	}

	removeStoredAvatar(srv, r, avatarURL)

	srv.Logger.Info("deleted user",
		"user_id", requester.ID,
		"target_id", target.ID,
	)
	w.WriteHeader(http.StatusNoContent)
}
