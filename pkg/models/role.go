package models

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Role is a named set of privileges that can be assigned to users.
type Role struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Name string `gorm:"size:100;not null;uniqueIndex" json:"name"`

	Description string `gorm:"type:text" json:"description,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (Role) TableName() string {
	return "roles"
}

// UserRoleAssignment assigns a role to a user.
type UserRoleAssignment struct {
	ID uint `gorm:"primaryKey" json:"id"`

	UserID uint  `gorm:"not null;index" json:"user_id"`
	User   *User `json:"-"`

	RoleID uint  `gorm:"not null;index" json:"role_id"`
	Role   *Role `json:"role,omitempty"`

	IsActive bool `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (UserRoleAssignment) TableName() string {
	return "user_role_assignments"
}

// GetOrCreateRole returns the role with the exact name, creating it if needed.
func GetOrCreateRole(db *gorm.DB, name string) (*Role, error) {
	name = strings.TrimSpace(name)
	if err := validation.Validate(name,
		validation.Required, validation.Length(1, 100),
	); err != nil {
		return nil, fmt.Errorf("invalid role name: %w", err)
	}

	role := &Role{}
	if err := db.
		Where(Role{Name: name}).
		FirstOrCreate(role).
		Error; err != nil {
		return nil, err
	}
	return role, nil
}

// AssignRole creates an active assignment of the role to the user.
func AssignRole(db *gorm.DB, userID, roleID uint) (*UserRoleAssignment, error) {
	a := &UserRoleAssignment{
		UserID:   userID,
		RoleID:   roleID,
		IsActive: true,
	}
	if err := validation.ValidateStruct(a,
		validation.Field(&a.UserID, validation.Required),
		validation.Field(&a.RoleID, validation.Required),
	); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	if err := db.Omit(clause.Associations).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// HasActiveRole reports whether the user has an active assignment to any of
// the named roles. Names are compared case-insensitively.
func HasActiveRole(db *gorm.DB, userID uint, names ...string) (bool, error) {
	if len(names) == 0 {
		return false, nil
	}
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(n)
	}

	var count int64
	err := db.
		Model(&UserRoleAssignment{}).
		Joins("JOIN roles ON roles.id = user_role_assignments.role_id").
		Where("user_role_assignments.user_id = ?", userID).
		Where("user_role_assignments.is_active = ?", true).
		Where("LOWER(roles.name) IN ?", lowered).
		Count(&count).
		Error
	return count > 0, err
}

// ActiveRoleNames returns the names of the user's active roles.
func ActiveRoleNames(db *gorm.DB, userID uint) ([]string, error) {
	var names []string
	err := db.
		Model(&UserRoleAssignment{}).
		Joins("JOIN roles ON roles.id = user_role_assignments.role_id").
		Where("user_role_assignments.user_id = ? AND user_role_assignments.is_active = ?",
			userID, true).
		Order("roles.name ASC").
		Pluck("roles.name", &names).
		Error
	return names, err
}
