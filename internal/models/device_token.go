package models

import (
	"strings"
	"time"
)

// RecipientToken is a device registration token owned by a user.
// ErrorAt is set once FCM reports the token as permanently invalid.
type RecipientToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    int64      `gorm:"index" json:"user_id"`
	Token     string     `gorm:"uniqueIndex;not null" json:"token"`
	Platform  string     `json:"platform"`
	ErrorAt   *time.Time `json:"error_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (RecipientToken) TableName() string { return "firebase_tokens" }

// Invalid reports whether the token has been marked unusable.
func (t *RecipientToken) Invalid() bool {
	return t != nil && t.ErrorAt != nil
}

// PlatformCategory normalizes a platform string to one of the supported categories.
func PlatformCategory(platform string) string {
	switch strings.ToLower(platform) {
	case "android", "ios":
		return "mobile"
	case "web":
		return "web"
	default:
		return "unknown"
	}
}
