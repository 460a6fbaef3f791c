package models

import (
	"fmt"
	"strings"
)

type UserRole string

const (
	UserRoleAdmin           UserRole = "admin"
	UserRoleInspector       UserRole = "inspector"
	UserRoleCommunityLeader UserRole = "community_leader"
)

var userRoles = []UserRole{UserRoleAdmin, UserRoleInspector, UserRoleCommunityLeader}

func (r UserRole) Valid() bool {
	for _, role := range userRoles {
		if r == role {
			return true
		}
	}
	return false
}

func ParseUserRole(value string) (UserRole, error) {
	role := UserRole(strings.TrimSpace(strings.ToLower(value)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}

type User struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	Phone  *string  `json:"phone,omitempty"`
	Avatar *string  `json:"avatar,omitempty"`
}

// Merge overlays the non-empty fields of update onto u. The server echoes the
// full user on profile updates, but older deployments return only the changed
// fields, so absent values never erase cached ones.
func (u User) Merge(update User) User {
	if update.ID != "" {
		u.ID = update.ID
	}
	if update.Name != "" {
		u.Name = update.Name
	}
	if update.Email != "" {
		u.Email = update.Email
	}
	if update.Role != "" {
		u.Role = update.Role
	}
	if update.Phone != nil {
		u.Phone = update.Phone
	}
	if update.Avatar != nil {
		u.Avatar = update.Avatar
	}
	return u
}

// Session is the authenticated identity cached for one browser client.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func (s Session) Valid() bool {
	return s.Token != "" && s.User.Role != ""
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Registration struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Role     UserRole `json:"role,omitempty"`
	Phone    string   `json:"phone,omitempty"`
}

type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
	Password *string `json:"password,omitempty"`
}

func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Phone == nil && p.Avatar == nil && p.Password == nil
}
