// Package identity defines the contract between the API and the identity provider
// (Cognito in production, a local provider in development and tests).
package identity

import (
	"context"
	"errors"
	"strings"
)

// Role IDs as stored in the roles table.
const (
	RoleGuest   = 1
	RoleMember  = 2
	RoleTeacher = 3
	RoleAdmin   = 4
)

// Identity provider group names.
const (
	GroupMember  = "Member"
	GroupTeacher = "Teacher"
	GroupAdmin   = "Admin"
)

var (
	ErrUserExists         = errors.New("email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotConfirmed       = errors.New("email not confirmed")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrCodeMismatch       = errors.New("invalid verification code")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrInvalidPassword    = errors.New("password does not meet the requirements")
	ErrLimitExceeded      = errors.New("attempt limit exceeded, please try again later")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

var roleNames = map[int]string{
	RoleGuest:   "Guest",
	RoleMember:  "Member",
	RoleTeacher: "Teacher",
	RoleAdmin:   "Admin",
}

// RoleName returns the display name of a role ID. Unknown IDs are Guests.
func RoleName(id int) string {
	if name, ok := roleNames[id]; ok {
		return name
	}
	return roleNames[RoleGuest]
}

// RoleID maps a role or group name (any case) to its ID.
func RoleID(name string) (int, bool) {
	for id, n := range roleNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return id, true
		}
	}
	return 0, false
}

// GroupForRole is the provider group a role ID belongs to.
func GroupForRole(id int) string {
	switch id {
	case RoleAdmin:
		return GroupAdmin
	case RoleTeacher:
		return GroupTeacher
	default:
		return GroupMember
	}
}

// RoleFromGroups picks the highest role among groups: Admin > Teacher > Member, else Guest.
func RoleFromGroups(groups []string) int {
	role := RoleGuest
	for _, g := range groups {
		switch {
		case strings.EqualFold(g, GroupAdmin):
			return RoleAdmin
		case strings.EqualFold(g, GroupTeacher):
			role = RoleTeacher
		case strings.EqualFold(g, GroupMember) && role < RoleMember:
			role = RoleMember
		}
	}
	return role
}

// Claims are the verified claims of a bearer token.
type Claims struct {
	Sub             string   `json:"sub"`
	Email           string   `json:"email,omitempty"`
	Username        string   `json:"username,omitempty"`
	CognitoUsername string   `json:"cognito:username,omitempty"`
	Groups          []string `json:"cognito:groups,omitempty"`
	TokenUse        string   `json:"token_use,omitempty"`
	ClientID        string   `json:"client_id,omitempty"`
}

// LookupEmails returns the candidate emails of the token owner, in lookup order.
func (c Claims) LookupEmails() []string {
	emails := make([]string, 0, 3)
	for _, v := range []string{c.Email, c.Username, c.CognitoUsername} {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && strings.Contains(v, "@") {
			emails = append(emails, v)
		}
	}
	return emails
}

// Principal is the authenticated request user.
type Principal struct {
	Sub         string   `json:"sub"`
	Email       string   `json:"email"`
	Groups      []string `json:"groups"`
	RoleName    string   `json:"roleName"`
	RoleID      int      `json:"roleId"`
	LocalUserID string   `json:"localUserId"`
}

func (p Principal) IsAdmin() bool          { return p.RoleID == RoleAdmin }
func (p Principal) IsTeacher() bool        { return p.RoleID == RoleTeacher }
func (p Principal) IsAdminOrTeacher() bool { return p.IsAdmin() || p.IsTeacher() }

// HasAnyRole reports whether the principal holds one of roles. No roles means any.
func (p Principal) HasAnyRole(roles ...int) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if p.RoleID == r {
			return true
		}
	}
	return false
}

// Verifier validates bearer tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

type (
	SignUpInput struct {
		Email    string
		Password string
		FullName string
		Phone    string
	}

	SignUpResult struct {
		Sub       string
		Confirmed bool
	}

	Tokens struct {
		AccessToken  string `json:"accessToken"`
		IDToken      string `json:"idToken"`
		RefreshToken string `json:"refreshToken,omitempty"`
		ExpiresIn    int    `json:"expiresIn"`
		TokenType    string `json:"tokenType"`
	}
)

// Provider is a managed identity provider.
type Provider interface {
	SignUp(ctx context.Context, in SignUpInput) (SignUpResult, error)
	ConfirmSignUp(ctx context.Context, email, code string) error
	ResendConfirmationCode(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (Tokens, error)
	Logout(ctx context.Context, accessToken string) error
	ForgotPassword(ctx context.Context, email string) error
	ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error
	AddUserToGroup(ctx context.Context, email, group string) error
}

// PrincipalCache caches resolved principals by token subject.
type PrincipalCache interface {
	Get(ctx context.Context, sub string) (Principal, bool)
	Set(ctx context.Context, sub string, p Principal) error
	Delete(ctx context.Context, subs ...string) error
}
