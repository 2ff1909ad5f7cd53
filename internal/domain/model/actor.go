package model

import (
	"fmt"
	"strings"
)

// Role identifies who is acting on a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid and MarshalText need value receivers
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTranslator Role = "translator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
	// RoleSystem is used by background services such as the re-offer sweeper.
	RoleSystem Role = "system"
)

// Valid returns true if the role is known.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleTranslator, RoleAdmin, RoleSuperAdmin, RoleSystem:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler so roles work with flag.TextVar.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	v := Role(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid Role: %q", v)
	}
	*r = v
	return nil
}

// Actor is the authenticated party issuing a command.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Privileged reports whether the actor may bypass candidate checks and see every job.
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin || a.Role == RoleSystem
}
