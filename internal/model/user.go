package model

import (
	"strings"
	"time"
)

// Role is the backend role value. Students are stored as "user".
type Role string

const (
	RoleStudent Role = "user"
	RoleCreator Role = "creator"
)

// ParseRole accepts the backend values plus the "student" and "tutor" aliases.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "user", "student":
		return RoleStudent, true
	case "creator", "tutor":
		return RoleCreator, true
	default:
		return "", false
	}
}

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleCreator
}

func (r Role) String() string {
	if r == RoleStudent {
		return "student"
	}
	return string(r)
}

type Identity struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      Role      `json:"role"`
	Avatar    string    `json:"avatar,omitempty"`
	Bio       string    `json:"bio"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

func (i Identity) FullName() string {
	name := strings.TrimSpace(i.FirstName + " " + i.LastName)
	if name == "" {
		return i.Email
	}
	return name
}

// CredentialPair is the access/refresh token pair issued by the backend.
type CredentialPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (p CredentialPair) Complete() bool {
	return strings.TrimSpace(p.Access) != "" && strings.TrimSpace(p.Refresh) != ""
}

func (p CredentialPair) Empty() bool {
	return p.Access == "" && p.Refresh == ""
}

// AuthResult is returned by both OAuth exchange endpoints.
type AuthResult struct {
	Tokens CredentialPair `json:"tokens"`
	User   Identity       `json:"user"`
}

type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Avatar    *string `json:"avatar,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}
