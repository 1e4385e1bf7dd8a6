package model

import (
	"time"
)

type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

// User is a parent or a child. Only children own a wallet, an avatar and
// mission instances; ParentID links a child to the parent administering it.
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"email"`
	Name      string    `gorm:"type:varchar(64);not null" json:"name"`
	Role      Role      `gorm:"type:varchar(16);index;not null" json:"role"`
	ParentID  *int64    `gorm:"index" json:"parent_id,omitempty"`
	Age       *int      `json:"age,omitempty"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "app_user"
}

func (u *User) IsChild() bool {
	return u.Role == RoleChild
}

// IsParentOf reports whether u administers child.
func (u *User) IsParentOf(child *User) bool {
	return u.Role == RoleParent && child.ParentID != nil && *child.ParentID == u.ID
}

// AgeOr returns the user's age, or fallback when none is recorded.
func (u *User) AgeOr(fallback int) int {
	if u.Age == nil {
		return fallback
	}
	return *u.Age
}

// Avatar is created with default looks together with the child.
type Avatar struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	Name        string    `gorm:"type:varchar(64);not null" json:"name"`
	SkinTone    string    `gorm:"type:varchar(32);not null" json:"skin_tone"`
	HairStyle   string    `gorm:"type:varchar(32);not null" json:"hair_style"`
	HairColor   string    `gorm:"type:varchar(32);not null" json:"hair_color"`
	Outfit      string    `gorm:"type:varchar(32);not null" json:"outfit"`
	Accessories []string  `gorm:"serializer:json;type:text" json:"accessories"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Avatar) TableName() string {
	return "avatar"
}

func DefaultAvatar(userID int64, name string) *Avatar {
	return &Avatar{
		UserID:      userID,
		Name:        name,
		SkinTone:    "medium",
		HairStyle:   "short",
		HairColor:   "brown",
		Outfit:      "default",
		Accessories: []string{},
	}
}
