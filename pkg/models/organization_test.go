package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestOrganization_Create(t *testing.T) {
	db := setupTestDB(t)

	o := &Organization{Title: "  Acme  "}
	require.NoError(t, o.Create(db))
	assert.NotZero(t, o.ID)
	assert.Equal(t, "Acme", o.Title)

	assert.Error(t, (&Organization{Title: " "}).Create(db))
}

func TestOrganization_AddUser(t *testing.T) {
	db := setupTestDB(t)
	org := createTestOrg(t, db, "Acme")
	u := createTestUser(t, db, "member@example.com")

	m, created, err := org.AddUser(db, u.ID)
	require.NoError(t, err)
	assert.True(t, created)
	firstID := m.ID

	t.Run("existing membership is reused", func(t *testing.T) {
		m, created, err := org.AddUser(db, u.ID)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, firstID, m.ID)
	})

	t.Run("soft deleted membership is restored", func(t *testing.T) {
		require.NoError(t, db.Delete(&OrganizationMember{}, firstID).Error)

		_, err := FindOrganizationByUser(db, u.ID)
		require.ErrorIs(t, err, gorm.ErrRecordNotFound)

		m, created, err := org.AddUser(db, u.ID)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, firstID, m.ID)
		assert.False(t, m.DeletedAt.Valid)

		found, err := FindOrganizationByUser(db, u.ID)
		require.NoError(t, err)
		assert.Equal(t, org.ID, found.ID)
	})

	t.Run("requires ids", func(t *testing.T) {
		_, _, err := (&Organization{}).AddUser(db, u.ID)
		assert.Error(t, err)
		_, _, err = org.AddUser(db, 0)
		assert.Error(t, err)
	})
}

func TestFirstOrganization(t *testing.T) {
	db := setupTestDB(t)

	_, err := FirstOrganization(db)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	first := createTestOrg(t, db, "First")
	createTestOrg(t, db, "Second")

	got, err := FirstOrganization(db)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestListMemberships(t *testing.T) {
	db := setupTestDB(t)
	org := createTestOrg(t, db, "Acme")
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	mk := func(email, first, last string, joined time.Time, activity *time.Time, createdBy *uint) *User {
		u := &User{
			Email:       email,
			FirstName:   first,
			LastName:    last,
			DateJoined:  joined,
			CreatedByID: createdBy,
		}
		require.NoError(t, u.Create(db))
		if activity != nil {
			require.NoError(t, u.TouchLastActivity(db, *activity))
		}
		_, _, err := org.AddUser(db, u.ID)
		require.NoError(t, err)
		return u
	}

	recent := now.Add(-24 * time.Hour)
	old := now.Add(-30 * 24 * time.Hour)

	admin := mk("admin@example.com", "Ada", "Admin", old, &recent, nil)
	fresh := mk("fresh@example.com", "Fresh", "Joiner", recent, nil, &admin.ID)
	stale := mk("stale@example.com", "Stale", "Person", old, &old, &admin.ID)
	neverSeen := mk("ghost_user@example.com", "Ghost", "", old, nil, nil)

	ids := func(members []OrganizationMember) []uint {
		out := make([]uint, 0, len(members))
		for _, m := range members {
			require.NotNil(t, m.User)
			require.NotNil(t, m.Organization)
			out = append(out, m.User.ID)
		}
		return out
	}

	t.Run("all ordered by user id", func(t *testing.T) {
		members, total, err := ListMemberships(db, MembershipFilter{Now: now}, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Equal(t, []uint{admin.ID, fresh.ID, stale.ID, neverSeen.ID}, ids(members))
	})

	t.Run("paginates", func(t *testing.T) {
		members, total, err := ListMemberships(db, MembershipFilter{Now: now}, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Equal(t, []uint{stale.ID}, ids(members))
	})

	t.Run("created by", func(t *testing.T) {
		members, total, err := ListMemberships(db,
			MembershipFilter{Now: now, CreatedBy: &admin.ID}, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Equal(t, []uint{fresh.ID, stale.ID}, ids(members))
	})

	t.Run("search is case insensitive", func(t *testing.T) {
		members, _, err := ListMemberships(db,
			MembershipFilter{Now: now, Search: "STALE"}, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, []uint{stale.ID}, ids(members))
	})

	t.Run("search escapes wildcards", func(t *testing.T) {
		members, _, err := ListMemberships(db,
			MembershipFilter{Now: now, Search: "_user"}, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, []uint{neverSeen.ID}, ids(members))
	})

	t.Run("active users", func(t *testing.T) {
		members, _, err := ListMemberships(db,
			MembershipFilter{Now: now, Activity: ActivityActive}, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, []uint{admin.ID, fresh.ID}, ids(members))
	})

	t.Run("inactive users", func(t *testing.T) {
		members, _, err := ListMemberships(db,
			MembershipFilter{Now: now, Activity: ActivityInactive}, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, []uint{stale.ID, neverSeen.ID}, ids(members))
	})

	t.Run("join date range", func(t *testing.T) {
		after := now.Add(-7 * 24 * time.Hour)
		members, _, err := ListMemberships(db,
			MembershipFilter{Now: now, JoinedAfter: &after}, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, []uint{fresh.ID}, ids(members))

		members, _, err = ListMemberships(db,
			MembershipFilter{Now: now, JoinedBefore: &after}, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, []uint{admin.ID, stale.ID, neverSeen.ID}, ids(members))
	})

	t.Run("removed members are hidden", func(t *testing.T) {
		require.NoError(t, db.Where("user_id = ?", stale.ID).
			Delete(&OrganizationMember{}).Error)

		_, total, err := ListMemberships(db, MembershipFilter{Now: now}, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	})
}
