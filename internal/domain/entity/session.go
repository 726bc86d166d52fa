package entity

import "time"

// Role is the author of a session turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ValidRole reports whether r is a role session memory accepts.
func ValidRole(r Role) bool {
	return r == RoleUser || r == RoleAssistant
}

// SessionTurn is one stored message of the bounded per-user window.
type SessionTurn struct {
	Role    Role
	Content string
	TS      time.Time
}
