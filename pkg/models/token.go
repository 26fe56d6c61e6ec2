package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// tokenKeyBytes is the number of random bytes in a token key (40 hex chars).
const tokenKeyBytes = 20

// Token is the API token of a user. Each user has at most one token. The key
// is kept retrievable because users can read their current token back.
type Token struct {
	UserID uint  `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	User   *User `json:"-"`

	Key string `gorm:"size:40;not null;uniqueIndex" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (Token) TableName() string {
	return "auth_tokens"
}

// GenerateTokenKey returns a new random token key.
func GenerateTokenKey() (string, error) {
	b := make([]byte, tokenKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error generating random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GetToken retrieves the token of a user.
func GetToken(db *gorm.DB, userID uint) (*Token, error) {
	if err := validation.Validate(userID, validation.Required); err != nil {
		return nil, err
	}

	t := &Token{}
	if err := db.
		Where("user_id = ?", userID).
		First(t).
		Error; err != nil {
		return nil, err
	}
	return t, nil
}

// IssueToken returns the existing token of the user or creates one.
func IssueToken(db *gorm.DB, userID uint) (*Token, error) {
	if err := validation.Validate(userID, validation.Required); err != nil {
		return nil, err
	}

	key, err := GenerateTokenKey()
	if err != nil {
		return nil, err
	}

	t := &Token{}
	if err := db.
		Where(Token{UserID: userID}).
		Attrs(Token{Key: key}).
		FirstOrCreate(t).
		Error; err != nil {
		return nil, fmt.Errorf("error issuing token: %w", err)
	}
	return t, nil
}

// ResetToken replaces the token of the user with a freshly generated one.
func ResetToken(db *gorm.DB, userID uint) (*Token, error) {
	if err := validation.Validate(userID, validation.Required); err != nil {
		return nil, err
	}

	key, err := GenerateTokenKey()
	if err != nil {
		return nil, err
	}

	t := &Token{
		UserID: userID,
		Key:    key,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("user_id = ?", userID).
			Delete(&Token{}).
			Error; err != nil {
			return fmt.Errorf("error deleting old token: %w", err)
		}
		return tx.Omit(clause.Associations).Create(t).Error
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UserByTokenKey returns the user owning the token key.
func UserByTokenKey(db *gorm.DB, key string) (*User, error) {
	if err := validation.Validate(key,
		validation.Required, validation.Length(tokenKeyBytes*2, tokenKeyBytes*2),
	); err != nil {
		return nil, gorm.ErrRecordNotFound
	}

	t := &Token{}
	if err := db.
		Preload("User").
		Where(&Token{Key: key}).
		First(t).
		Error; err != nil {
		return nil, err
	}

	if t.User == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return t.User, nil
}
