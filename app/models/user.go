package models

import "github.com/shashiranjanraj/bunkar/pkg/auth"

// User is a customer or a staff member. PasswordHash is nil for accounts
// that sign in through an external identity provider.
type User struct {
	Base
	Name         string  `gorm:"size:255;not null" json:"name"`
	Email        string  `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash *string `gorm:"size:255" json:"-"`
	Role         string  `gorm:"size:20;not null;default:USER" json:"role"`
}

// IsStaff reports whether the user may run back-office actions.
func (u *User) IsStaff() bool {
	return u.Role == auth.RoleAdmin || u.Role == auth.RoleSalesperson
}

// ContactMessage is a message left through the contact form.
type ContactMessage struct {
	Base
	Name    string  `gorm:"size:255;not null" json:"name"`
	Email   string  `gorm:"size:255;not null;index" json:"email"`
	Message string  `gorm:"type:text;not null" json:"message"`
	Score   float64 `json:"score"`
}
