package api

import (
	"time"

	"github.com/labelforge/labelforge/pkg/models"
)

// UserResponse is the user object returned by the user endpoints.
type UserResponse struct {
	ID                 uint       `json:"id"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	LastActivity       *time.Time `json:"last_activity"`
	Avatar             *string    `json:"avatar"`
	Initials           string     `json:"initials"`
	Phone              string     `json:"phone"`
	ActiveOrganization *uint      `json:"active_organization"`
	AllowNewsletters   bool       `json:"allow_newsletters"`
	DateJoined         time.Time  `json:"date_joined"`
}

func newUserResponse(u *models.User) UserResponse {
	resp := UserResponse{
		ID:                 u.ID,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		Username:           u.Username,
		Email:              u.Email,
		LastActivity:       u.LastActivity,
		Initials:           u.Initials(),
		Phone:              u.Phone,
		ActiveOrganization: u.ActiveOrganizationID,
		AllowNewsletters:   u.AllowNewsletters,
		DateJoined:         u.DateJoined,
	}
	if u.Avatar != "" {
		avatar := u.Avatar
		resp.Avatar = &avatar
	}
	return resp
}

// MembershipUser is the user part of a membership listing entry.
type MembershipUser struct {
	ID        uint   `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	IsActive  bool   `json:"is_active"`
	CreatedBy *uint  `json:"created_by"`
}

// ActivityMembershipUser adds activity timestamps, RFC 3339 or null.
type ActivityMembershipUser struct {
	MembershipUser
	LastActivity *string `json:"last_activity"`
	DateJoined   *string `json:"date_joined"`
}

// MembershipOrganization is the organization part of a membership listing
// entry.
type MembershipOrganization struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

// MembershipEntry is one result of a membership listing.
type MembershipEntry struct {
	// User is a MembershipUser or an ActivityMembershipUser.
	User         any                    `json:"user"`
	Organization MembershipOrganization `json:"organization"`
}

// MembershipListResponse is the paginated membership listing.
type MembershipListResponse struct {
	Results    []MembershipEntry `json:"results"`
	Count      int64             `json:"count"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int64             `json:"total_pages"`
	UserRole   string            `json:"user_role,omitempty"`
	Message    string            `json:"message"`
}

func newMembershipEntries(members []models.OrganizationMember, withActivity bool) []MembershipEntry {
	entries := make([]MembershipEntry, 0, len(members))
	for _, m := range members {
		var e MembershipEntry
		if u := m.User; u != nil {
			mu := MembershipUser{
				ID:        u.ID,
				Email:     u.Email,
				FirstName: u.FirstName,
				LastName:  u.LastName,
				Username:  u.Username,
				IsActive:  u.IsActive,
				CreatedBy: u.CreatedByID,
			}
			if withActivity {
				e.User = ActivityMembershipUser{
					MembershipUser: mu,
					LastActivity:   formatTime(u.LastActivity),
					DateJoined:     formatTime(&u.DateJoined),
				}
			} else {
				e.User = mu
			}
		}
		if o := m.Organization; o != nil {
			e.Organization = MembershipOrganization{
				ID:    o.ID,
				Title: o.Title,
			}
		}
		entries = append(entries, e)
	}
	return entries
}

func formatTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
