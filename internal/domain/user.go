// Package domain contains core domain types for the intake service.
package domain

import (
	"time"
)

// User is a service seeker, the person who reports issues.
type User struct {
	ID           string    `json:"_id" yaml:"id"`
	FullName     FullName  `json:"fullName" yaml:"fullName"`
	Email        string    `json:"email,omitempty" yaml:"email"`
	Phone        string    `json:"phone,omitempty" yaml:"phone"`
	AuthProvider string    `json:"authProvider" yaml:"authProvider"`
	Address      *Address  `json:"address,omitempty" yaml:"address"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"-"`
}

// HasAddress returns true if the user has a city or a state on file.
func (u *User) HasAddress() bool {
	return u != nil && u.Address != nil && (u.Address.City != "" || u.Address.State != "")
}
