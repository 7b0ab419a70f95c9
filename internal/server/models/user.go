// Package models defines server-side data models persisted in the database.
package models

import "time"

type User struct {
	ID               int64
	UserName         string
	PasswordHash     string
	Role             Role
	RemainingSeconds int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UserUpdate carries the optional fields of an admin update. Nil means
// "leave unchanged".
type UserUpdate struct {
	PasswordHash     *string
	Role             *Role
	RemainingSeconds *int64
}
