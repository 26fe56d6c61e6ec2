package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelforge/labelforge/pkg/auth"
	"github.com/labelforge/labelforge/pkg/models"
)

func TestUsers_List(t *testing.T) {
	env := newTestEnv(t)
	member, memberToken := env.createMember("member@example.com", nil)
	created, _ := env.createMember("created@example.com", &member.ID)

	outsider := &models.User{Email: "outsider@example.com", IsActive: true}
	require.NoError(t, outsider.Create(env.db))

	t.Run("AdminSeesOrganization", func(t *testing.T) {
		w := env.do("GET", "/api/users/", env.adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)

		users := decodeBody[[]UserResponse](t, w)
		var ids []uint
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		assert.Equal(t, []uint{env.admin.ID, member.ID, created.ID}, ids)
	})

	t.Run("MemberSeesCreatedUsers", func(t *testing.T) {
		w := env.do("GET", "/api/users/", memberToken, nil)
		require.Equal(t, http.StatusOK, w.Code)

		users := decodeBody[[]UserResponse](t, w)
		require.Len(t, users, 1)
		assert.Equal(t, created.ID, users[0].ID)
		assert.Nil(t, users[0].Avatar)
		assert.Equal(t, "cr", users[0].Initials)
	})

	t.Run("NoActiveOrganization", func(t *testing.T) {
		tok, err := models.IssueToken(env.db, outsider.ID)
		require.NoError(t, err)

		w := env.do("GET", "/api/users/", tok.Key, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeBody[[]UserResponse](t, w))
	})
}

func TestUsers_Create(t *testing.T) {
	env := newTestEnv(t)
	member, memberToken := env.createMember("member@example.com", nil)

	t.Run("ByMember", func(t *testing.T) {
		w := env.do("POST", "/api/users/", memberToken, map[string]any{
			"email":      "new@example.com",
			"first_name": "New",
			"last_name":  "Person",
			"password":   "correct horse battery",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		resp := decodeBody[UserResponse](t, w)
		assert.Equal(t, "new@example.com", resp.Username)
		assert.Equal(t, "NP", resp.Initials)
		require.NotNil(t, resp.ActiveOrganization)
		assert.Equal(t, env.org.ID, *resp.ActiveOrganization)

		u := env.reload(&models.User{ID: resp.ID})
		require.NotNil(t, u.CreatedByID)
		assert.Equal(t, member.ID, *u.CreatedByID)
		ok, err := auth.VerifyPassword("correct horse battery", u.PasswordHash)
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = models.GetToken(env.db, u.ID)
		assert.NoError(t, err)

		org, err := models.FindOrganizationByUser(env.db, u.ID)
		require.NoError(t, err)
		assert.Equal(t, env.org.ID, org.ID)
	})

	t.Run("ByAdminHasNoCreator", func(t *testing.T) {
		w := env.do("POST", "/api/users", env.adminToken, map[string]any{
			"email": "staff@example.com",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		u := env.reload(&models.User{ID: decodeBody[UserResponse](t, w).ID})
		assert.Nil(t, u.CreatedByID)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		w := env.do("POST", "/api/users/", env.adminToken, map[string]any{
			"email": "member@example.com",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody[map[string][]string](t, w)
		assert.Equal(t, []string{"user with this email already exists."}, body["email"])
	})

	t.Run("InvalidEmail", func(t *testing.T) {
		w := env.do("POST", "/api/users/", env.adminToken, map[string]any{
			"email": "not-an-email",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody[map[string][]string](t, w)
		assert.Contains(t, body, "email")
	})

	t.Run("ShortPassword", func(t *testing.T) {
		w := env.do("POST", "/api/users/", env.adminToken, map[string]any{
			"email":    "short@example.com",
			"password": "short",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeBody[map[string][]string](t, w), "password")
	})
}

func TestUser_Retrieve(t *testing.T) {
	env := newTestEnv(t)
	member, memberToken := env.createMember("member@example.com", nil)

	w := env.do("GET", "/api/users/"+itoa(member.ID)+"/", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, member.Email, decodeBody[UserResponse](t, w).Email)

	// Members only see users they created.
	w = env.do("GET", "/api/users/"+itoa(env.admin.ID), memberToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found.", decodeBody[map[string]string](t, w)["detail"])

	w = env.do("GET", "/api/users/99999", env.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do("GET", "/api/users/abc", env.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUsers_Head(t *testing.T) {
	env := newTestEnv(t)
	member, memberToken := env.createMember("member@example.com", nil)

	w := env.do("HEAD", "/api/users/", env.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do("HEAD", "/api/users/"+itoa(member.ID)+"/", env.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do("HEAD", "/api/users/"+itoa(env.admin.ID)+"/", memberToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do("HEAD", "/api/users/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUser_Patch(t *testing.T) {
	env := newTestEnv(t)
	member, _ := env.createMember("member@example.com", nil)
	path := "/api/users/" + itoa(member.ID) + "/"

	t.Run("CamelCaseKeys", func(t *testing.T) {
		w := env.do("PATCH", path, env.adminToken, map[string]any{
			"firstName": "Mary",
			"last_name": "Major",
			"phone":     "555-0100",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeBody[UserResponse](t, w)
		assert.Equal(t, "Mary", resp.FirstName)
		assert.Equal(t, "Major", resp.LastName)
		assert.Equal(t, "MM", resp.Initials)

		u := env.reload(member)
		assert.Equal(t, "Mary", u.FirstName)
		assert.Equal(t, "555-0100", u.Phone)
	})

	t.Run("ReadOnlyFieldRejectedBeforeApply", func(t *testing.T) {
		w := env.do("PATCH", path, env.adminToken, map[string]any{
			"first_name": "Changed",
			"email":      "other@example.com",
		})
		require.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, "Cannot update read-only field: email",
			decodeBody[map[string]string](t, w)["detail"])

		u := env.reload(member)
		assert.Equal(t, "Mary", u.FirstName)
		assert.Equal(t, "member@example.com", u.Email)
	})

	t.Run("AllowNewslettersStoresRequesterPreferences", func(t *testing.T) {
		w := env.do("PATCH", path, env.adminToken, map[string]any{
			"allowNewsletters": true,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, decodeBody[UserResponse](t, w).AllowNewsletters)

		admin := env.reload(env.admin)
		var prefs map[string]any
		require.NoError(t, admin.AdvancedJSON.Decode(&prefs))
		assert.Equal(t, testAdminEmail, prefs["email"])
		assert.Equal(t, true, prefs["allow_newsletters"])
		assert.EqualValues(t, 1, prefs["update-notifications"])
		assert.EqualValues(t, 0, prefs["new-user"])
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		w := env.do("PATCH", path, env.adminToken, map[string]any{
			"username": testAdminEmail,
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeBody[map[string][]string](t, w), "username")
	})

	t.Run("EmptyUsername", func(t *testing.T) {
		w := env.do("PATCH", path, env.adminToken, map[string]any{
			"username": "  ",
		})
		require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		assert.Contains(t, decodeBody[map[string][]string](t, w), "username")

		assert.NotEmpty(t, env.reload(member).Username)
	})

	t.Run("WrongType", func(t *testing.T) {
		w := env.do("PATCH", path, env.adminToken, map[string]any{
			"first_name": 12,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUser_Put(t *testing.T) {
	env := newTestEnv(t)
	member, memberToken := env.createMember("member@example.com", nil)
	created, _ := env.createMember("created@example.com", &member.ID)

	// PUT needs organizations.change, which only administrators hold.
	w := env.do("PUT", "/api/users/"+itoa(created.ID), memberToken, map[string]any{})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do("PUT", "/api/users/"+itoa(created.ID), env.adminToken, map[string]any{})
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestUser_Delete(t *testing.T) {
	env := newTestEnv(t)
	member, memberToken := env.createMember("member@example.com", nil)
	created, _ := env.createMember("created@example.com", &member.ID)

	w := env.do("DELETE", "/api/users/"+itoa(env.admin.ID), memberToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do("DELETE", "/api/users/"+itoa(created.ID)+"/", memberToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	err := (&models.User{ID: created.ID}).Get(env.db)
	assert.Error(t, err)
	_, err = models.GetToken(env.db, created.ID)
	assert.Error(t, err)
}

func TestReadOnlyViolations(t *testing.T) {
	field, err := readOnlyViolations(map[string]any{"first_name": "x"})
	assert.NoError(t, err)
	assert.Empty(t, field)

	field, err = readOnlyViolations(map[string]any{
		"initials": "x",
		"avatar":   "y",
		"phone":    "z",
	})
	require.Error(t, err)
	assert.Equal(t, "avatar", field)
	assert.Contains(t, err.Error(), "initials")
}
