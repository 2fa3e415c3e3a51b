// Package domain contains entity types without logic, just meta-data.
package domain

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

const MaxUsernameLen = 36

type UserID string

// User is one anonymous connected person. Identity lives only for the
// lifetime of the connection; nothing is persisted.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func NewUser(username string, role Role) (*User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, ErrUnknownRole
	}
	return &User{ID: UserID(uuid.NewString()), Username: username, Role: role}, nil
}

func (u *User) SetUsername(username string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	u.Username = username
	return nil
}

func validateUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

var guestAdjectives = []string{"Quiet", "Brave", "Swift", "Gentle", "Wild", "Clever"}
var guestAnimals = []string{"Owl", "Tiger", "Fox", "Bear", "Deer", "Hawk"}

// GuestName produces a display name for clients that join without one.
func GuestName() string {
	adj := guestAdjectives[rand.Intn(len(guestAdjectives))]
	animal := guestAnimals[rand.Intn(len(guestAnimals))]
	return fmt.Sprintf("%s%s%d", adj, animal, rand.Intn(100))
}
