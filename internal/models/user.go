package models

import "time"

// User represents a registered customer. The order history hangs off the user.
type User struct {
	ID           string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name         string        `json:"name" gorm:"type:varchar(100)"`
	Email        string        `json:"email" gorm:"uniqueIndex;type:varchar(255)"`
	PasswordHash string        `json:"-" gorm:"type:varchar(255)"` // never serialized
	Orders       []OrderRecord `json:"orders,omitempty" gorm:"foreignKey:UserID;references:ID"`
	CreatedAt    time.Time     `json:"-"`
	UpdatedAt    time.Time     `json:"-"`
}

// PublicUser is the part of a User that is safe to hand out.
type PublicUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Public strips everything but the name and email.
func (u *User) Public() PublicUser {
	return PublicUser{Name: u.Name, Email: u.Email}
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	Token string     `json:"token"`
	User  PublicUser `json:"user"`
}
