package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Organization groups users that work together.
type Organization struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Title string `gorm:"size:1000;not null" json:"title"`

	// CreatedByID is the user that created the organization, if known.
	CreatedByID *uint `gorm:"index" json:"created_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Organization) TableName() string {
	return "organizations"
}

// OrganizationMember links a user to an organization. Removed memberships are
// soft deleted.
type OrganizationMember struct {
	ID uint `gorm:"primaryKey" json:"id"`

	UserID uint  `gorm:"not null;uniqueIndex:idx_organization_members_user_org" json:"user_id"`
	User   *User `json:"user,omitempty"`

	OrganizationID uint          `gorm:"not null;uniqueIndex:idx_organization_members_user_org;index" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for GORM.
func (OrganizationMember) TableName() string {
	return "organization_members"
}

// Create validates and inserts the organization.
func (o *Organization) Create(db *gorm.DB) error {
	o.Title = strings.TrimSpace(o.Title)
	if err := validation.ValidateStruct(o,
		validation.Field(&o.Title, validation.Required, validation.Length(1, 1000)),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.
		Omit(clause.Associations).
		Create(o).
		Error
}

// Get retrieves an organization by ID.
func (o *Organization) Get(db *gorm.DB) error {
	if err := validation.Validate(o.ID, validation.Required); err != nil {
		return err
	}
	return db.First(o, o.ID).Error
}

// AddUser makes the user a member of the organization. An existing live
// membership is returned as is and a soft deleted one is restored. created
// reports whether a new membership row was inserted.
func (o *Organization) AddUser(db *gorm.DB, userID uint) (
	m *OrganizationMember, created bool, err error,
) {
	if err := validation.Validate(o.ID, validation.Required); err != nil {
		return nil, false, err
	}
	if err := validation.Validate(userID, validation.Required); err != nil {
		return nil, false, err
	}

	m = &OrganizationMember{}
	err = db.
		Unscoped().
		Where("user_id = ? AND organization_id = ?", userID, o.ID).
		First(m).
		Error
	switch {
	case err == nil:
		if m.DeletedAt.Valid {
			if err := db.Unscoped().
				Model(m).
				Update("deleted_at", nil).Error; err != nil {
				return nil, false, fmt.Errorf("error restoring membership: %w", err)
			}
			m.DeletedAt = gorm.DeletedAt{}
		}
		return m, false, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		m = &OrganizationMember{
			UserID:         userID,
			OrganizationID: o.ID,
		}
		if err := db.Omit(clause.Associations).Create(m).Error; err != nil {
			return nil, false, fmt.Errorf("error creating membership: %w", err)
		}
		return m, true, nil

	default:
		return nil, false, fmt.Errorf("error finding membership: %w", err)
	}
}

// FirstOrganization returns the organization with the lowest ID.
// gorm.ErrRecordNotFound is returned when no organization exists.
func FirstOrganization(db *gorm.DB) (*Organization, error) {
	var o Organization
	if err := db.Order("id ASC").First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// FindOrganizationByUser returns the first organization the user is a live
// member of. gorm.ErrRecordNotFound is returned when there is none.
func FindOrganizationByUser(db *gorm.DB, userID uint) (*Organization, error) {
	var o Organization
	err := db.
		Joins("JOIN organization_members ON organization_members.organization_id = organizations.id").
		Where("organization_members.user_id = ? AND organization_members.deleted_at IS NULL", userID).
		Order("organizations.id ASC").
		First(&o).
		Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ActivityFilter selects users by recent activity.
type ActivityFilter string

const (
	ActivityAll      ActivityFilter = "All Users"
	ActivityActive   ActivityFilter = "Active Users"
	ActivityInactive ActivityFilter = "Inactive Users"
)

// ActivityWindow is how far back activity counts towards a user being active.
const ActivityWindow = 7 * 24 * time.Hour

// MembershipFilter narrows a membership listing.
type MembershipFilter struct {
	// CreatedBy limits results to users created by this user ID.
	CreatedBy *uint

	// Search is a case-insensitive substring matched against email, first
	// name, last name and username.
	Search string

	Activity ActivityFilter

	// Now anchors the activity window. Zero means time.Now().
	Now time.Time

	JoinedAfter  *time.Time
	JoinedBefore *time.Time
}

// ListMemberships returns live memberships with their user and organization
// loaded, ordered by user ID, along with the total number of matches.
func ListMemberships(
	db *gorm.DB, f MembershipFilter, offset, limit int,
) ([]OrganizationMember, int64, error) {
	query := func() *gorm.DB {
		q := db.
			Model(&OrganizationMember{}).
			Joins("JOIN users ON users.id = organization_members.user_id")
		return applyMembershipFilter(q, f)
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting memberships: %w", err)
	}

	var members []OrganizationMember
	if err := query().
		Preload("User").
		Preload("Organization").
		Order("users.id ASC").
		Order("organization_members.id ASC").
		Offset(offset).
		Limit(limit).
		Find(&members).
		Error; err != nil {
		return nil, 0, fmt.Errorf("error listing memberships: %w", err)
	}

	return members, total, nil
}

func applyMembershipFilter(q *gorm.DB, f MembershipFilter) *gorm.DB {
	if f.CreatedBy != nil {
		q = q.Where("users.created_by_id = ?", *f.CreatedBy)
	}

	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + escapeLike(strings.ToLower(s)) + "%"
		q = q.Where(
			"LOWER(users.email) LIKE ? ESCAPE '\\' OR "+
				"LOWER(users.first_name) LIKE ? ESCAPE '\\' OR "+
				"LOWER(users.last_name) LIKE ? ESCAPE '\\' OR "+
				"LOWER(users.username) LIKE ? ESCAPE '\\'",
			pattern, pattern, pattern, pattern,
		)
	}

	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	since := now.UTC().Add(-ActivityWindow)

	switch f.Activity {
	case ActivityActive:
		q = q.Where(
			"users.last_activity >= ? OR users.date_joined >= ?", since, since)
	case ActivityInactive:
		q = q.Where(
			"users.last_activity < ? OR (users.last_activity IS NULL AND users.date_joined < ?)",
			since, since)
	}

	if f.JoinedAfter != nil {
		q = q.Where("users.date_joined >= ?", f.JoinedAfter.UTC())
	}
	if f.JoinedBefore != nil {
		q = q.Where("users.date_joined < ?", f.JoinedBefore.UTC())
	}

	return q
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
