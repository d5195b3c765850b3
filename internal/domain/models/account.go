// internal/domain/models/account.go
package models

import "time"

// Account is the identity provider's stored credential record. It never
// leaves the identity package except as an Identity.
type Account struct {
	ID           string    `mapstructure:"-"`
	Email        string    `mapstructure:"email"`
	DisplayName  string    `mapstructure:"display_name"`
	PasswordHash string    `mapstructure:"password_hash"`
	CreatedAt    time.Time `mapstructure:"created_at"`
	UpdatedAt    time.Time `mapstructure:"updated_at"`
}

// Identity returns the public view of the account.
func (a *Account) Identity() *Identity {
	return &Identity{ID: a.ID, Email: a.Email, DisplayName: a.DisplayName}
}

func (a *Account) ToDocument() map[string]any {
	return map[string]any{
		"email":         a.Email,
		"display_name":  a.DisplayName,
		"password_hash": a.PasswordHash,
		"created_at":    a.CreatedAt,
		"updated_at":    a.UpdatedAt,
	}
}
