package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrEmailExists is returned when creating a user with an email address
	// that is already registered.
	ErrEmailExists = errors.New("user with this email already exists")

	// ErrUsernameExists is returned when creating or renaming a user to a
	// username that is already taken.
	ErrUsernameExists = errors.New("user with this username already exists")
)

// User is a platform account.
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Email is the unique login address of the user.
	Email string `gorm:"size:254;not null;uniqueIndex" json:"email"`

	// Username defaults to the email address when not provided.
	Username string `gorm:"size:256;not null;uniqueIndex" json:"username"`

	FirstName string `gorm:"size:256" json:"first_name"`
	LastName  string `gorm:"size:256" json:"last_name"`
	Phone     string `gorm:"size:256" json:"phone"`

	// Avatar is the public URL of the user's avatar image, if any.
	Avatar string `gorm:"size:1024" json:"avatar"`

	AllowNewsletters bool `gorm:"not null;default:false" json:"allow_newsletters"`

	IsActive    bool `gorm:"not null;default:true" json:"is_active"`
	IsStaff     bool `gorm:"not null;default:false" json:"-"`
	IsSuperuser bool `gorm:"not null;default:false" json:"-"`

	// PasswordHash is an argon2id encoded hash. Empty means password login is
	// disabled for the user.
	PasswordHash string `gorm:"size:512" json:"-"`

	// ActiveOrganizationID is the organization the user currently works in.
	ActiveOrganizationID *uint         `gorm:"index" json:"active_organization"`
	ActiveOrganization   *Organization `gorm:"foreignKey:ActiveOrganizationID" json:"-"`

	// CreatedByID is set when a non-admin user created this account.
	CreatedByID *uint `gorm:"index" json:"created_by"`

	DateJoined   time.Time  `gorm:"not null;index" json:"date_joined"`
	LastActivity *time.Time `gorm:"index" json:"last_activity"`

	// AdvancedJSON stores client-side preferences.
	AdvancedJSON JSON `gorm:"type:jsonb" json:"-"`

	UpdatedAt time.Time `json:"-"`
}

// TableName returns the table name for GORM.
func (User) TableName() string {
	return "users"
}

// Users is a slice of users.
type Users []User

// Initials returns a short label for the user built from their names, falling
// back to the start of the email address.
func (u *User) Initials() string {
	first := firstRune(u.FirstName)
	last := firstRune(u.LastName)

	switch {
	case first != "" && last != "":
		return first + last
	case first != "":
		return first
	case last != "":
		return last
	}

	if r := []rune(u.Email); len(r) > 0 {
		if len(r) > 2 {
			r = r[:2]
		}
		return string(r)
	}
	return "?"
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

// BeforeCreate fills defaults that depend on other fields.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	u.Email = strings.TrimSpace(u.Email)
	if u.Username == "" {
		u.Username = u.Email
	}
	if u.DateJoined.IsZero() {
		u.DateJoined = time.Now().UTC()
	}
	return nil
}

// Validate checks the fields required to persist a user.
func (u *User) Validate() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Email, validation.Required, is.EmailFormat,
			validation.Length(0, 254)),
		validation.Field(&u.Username, validation.Required, validation.Length(0, 256)),
		validation.Field(&u.FirstName, validation.Length(0, 256)),
		validation.Field(&u.LastName, validation.Length(0, 256)),
		validation.Field(&u.Phone, validation.Length(0, 256)),
	)
}

// Create validates and inserts the user. ErrEmailExists or ErrUsernameExists
// is returned for duplicates.
func (u *User) Create(db *gorm.DB) error {
	u.Email = strings.TrimSpace(u.Email)
	if u.Username == "" {
		u.Username = u.Email
	}
	if err := u.Validate(); err != nil {
		return err
	}

	exists, err := EmailExists(db, u.Email)
	if err != nil {
		return fmt.Errorf("error checking email: %w", err)
	}
	if exists {
		return ErrEmailExists
	}

	exists, err = usernameExists(db, u.Username, 0)
	if err != nil {
		return fmt.Errorf("error checking username: %w", err)
	}
	if exists {
		return ErrUsernameExists
	}

	return db.
		Omit(clause.Associations).
		Create(u).
		Error
}

// Get retrieves a user by ID.
func (u *User) Get(db *gorm.DB) error {
	if err := validation.Validate(u.ID, validation.Required); err != nil {
		return err
	}
	return db.First(u, u.ID).Error
}

// GetByEmail retrieves a user by email address.
func (u *User) GetByEmail(db *gorm.DB, email string) error {
	if err := validation.Validate(email, validation.Required); err != nil {
		return err
	}
	return db.
		Where("email = ?", strings.TrimSpace(email)).
		First(u).
		Error
}

// Save persists changed profile fields of an existing user.
func (u *User) Save(db *gorm.DB) error {
	if err := validation.ValidateStruct(u,
		validation.Field(&u.ID, validation.Required),
	); err != nil {
		return err
	}
	if err := u.Validate(); err != nil {
		return err
	}

	exists, err := usernameExists(db, u.Username, u.ID)
	if err != nil {
		return fmt.Errorf("error checking username: %w", err)
	}
	if exists {
		return ErrUsernameExists
	}

	return db.
		Model(u).
		Omit(clause.Associations).
		Select("username", "first_name", "last_name", "phone",
			"allow_newsletters", "avatar", "active_organization_id",
			"advanced_json", "updated_at").
		Updates(u).
		Error
}

// SetActiveOrganization updates only the active organization of the user.
func (u *User) SetActiveOrganization(db *gorm.DB, orgID uint) error {
	u.ActiveOrganizationID = &orgID
	return db.
		Model(u).
		Update("active_organization_id", orgID).
		Error
}

// TouchLastActivity records activity for the user.
func (u *User) TouchLastActivity(db *gorm.DB, at time.Time) error {
	at = at.UTC()
	u.LastActivity = &at
	return db.
		Model(u).
		UpdateColumn("last_activity", at).
		Error
}

// Delete removes the user together with its token, role assignments and
// organization memberships.
func (u *User) Delete(db *gorm.DB) error {
	if err := validation.Validate(u.ID, validation.Required); err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", u.ID).
			Delete(&Token{}).Error; err != nil {
			return fmt.Errorf("error deleting token: %w", err)
		}
		if err := tx.Where("user_id = ?", u.ID).
			Delete(&UserRoleAssignment{}).Error; err != nil {
			return fmt.Errorf("error deleting role assignments: %w", err)
		}
		if err := tx.Unscoped().Where("user_id = ?", u.ID).
			Delete(&OrganizationMember{}).Error; err != nil {
			return fmt.Errorf("error deleting memberships: %w", err)
		}
		if err := tx.Model(&User{}).
			Where("created_by_id = ?", u.ID).
			Update("created_by_id", nil).Error; err != nil {
			return fmt.Errorf("error detaching created users: %w", err)
		}
		return tx.Delete(&User{}, u.ID).Error
	})
}

// EmailExists reports whether a user with the email address exists.
func EmailExists(db *gorm.DB, email string) (bool, error) {
	var count int64
	err := db.
		Model(&User{}).
		Where("email = ?", strings.TrimSpace(email)).
		Count(&count).
		Error
	return count > 0, err
}

func usernameExists(db *gorm.DB, username string, excludeID uint) (bool, error) {
	var count int64
	q := db.Model(&User{}).Where("username = ?", username)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Count(&count).Error
	return count > 0, err
}

// InOrganization scopes a user query to users with a live membership in the
// organization.
func InOrganization(orgID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"users.id IN (?)",
			db.Session(&gorm.Session{NewDB: true}).
				Model(&OrganizationMember{}).
				Select("user_id").
				Where("organization_id = ? AND deleted_at IS NULL", orgID),
		)
	}
}

// CreatedBy scopes a user query to users created by the given user.
func CreatedBy(userID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("users.created_by_id = ?", userID)
	}
}
