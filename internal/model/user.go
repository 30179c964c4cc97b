// internal/model/user.go
package model

import "time"

type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	Mobile       string    `db:"mobile" json:"mobile"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// NewUser carries validated attributes for a user that does not exist yet.
// Password is already hashed by the time it reaches a repository.
type NewUser struct {
	Name         string
	Email        string
	Mobile       string
	PasswordHash string
}
