package domain

// Role determines matchmaking compatibility: venters pair with
// listeners and vice versa, casual chatters pair with each other.
type Role string

const (
	RoleVenter   Role = "venter"
	RoleListener Role = "listener"
	RoleChat     Role = "chat"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleVenter, RoleListener, RoleChat:
		return Role(s), nil
	}
	return "", ErrUnknownRole
}

// Complement returns the role a searching connection should be paired against.
func (r Role) Complement() Role {
	switch r {
	case RoleVenter:
		return RoleListener
	case RoleListener:
		return RoleVenter
	default:
		return RoleChat
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleVenter, RoleListener, RoleChat:
		return true
	}
	return false
}
