package models

import (
	"time"
)

const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"not null" json:"username"`
	Email     string    `gorm:"uniqueIndex;not null" json:"-"`
	Password  string    `gorm:"not null" json:"-"`                           // Hash
	Avatar    string    `gorm:"default:🌱" json:"avatar"`                     // emoji 头像
	Role      string    `gorm:"size:20;default:'user';not null" json:"role"` // user, moderator, admin
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsElevated reports whether the user holds moderation rights.
func (u *User) IsElevated() bool {
	return u.Role == RoleAdmin || u.Role == RoleModerator
}
