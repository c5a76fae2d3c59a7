package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/trezcool/learninghub/core/identity"
	"github.com/trezcool/learninghub/core/user"
)

func CreateUser(t *testing.T, repo user.Repository, email, pwd string, roleID int, isActive bool) user.User {
	t.Helper()
	usr := user.User{
		Email:         email,
		RoleID:        roleID,
		IsActive:      isActive,
		EmailVerified: true,
	}
	usr.FullName.SetValid(strings.Split(email, "@")[0])
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUserWithProfile(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// IdentityProvider is a scriptable identity.Provider. Errs maps a method name to the error it returns.
type IdentityProvider struct {
	mu     sync.Mutex
	Errs   map[string]error
	Groups map[string]string // by email
	Calls  []string
	Tokens identity.Tokens
}

func NewIdentityProvider() *IdentityProvider {
	return &IdentityProvider{
		Errs:   make(map[string]error),
		Groups: make(map[string]string),
		Tokens: identity.Tokens{AccessToken: "access", IDToken: "id", ExpiresIn: 3600, TokenType: "Bearer"},
	}
}

func (p *IdentityProvider) call(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, name)
	return p.Errs[name]
}

func (p *IdentityProvider) SignUp(_ context.Context, in identity.SignUpInput) (identity.SignUpResult, error) {
	if err := p.call("SignUp"); err != nil {
		return identity.SignUpResult{}, err
	}
	return identity.SignUpResult{Sub: "sub-" + in.Email}, nil
}

func (p *IdentityProvider) ConfirmSignUp(context.Context, string, string) error {
	return p.call("ConfirmSignUp")
}

func (p *IdentityProvider) ResendConfirmationCode(context.Context, string) error {
	return p.call("ResendConfirmationCode")
}

func (p *IdentityProvider) Login(context.Context, string, string) (identity.Tokens, error) {
	if err := p.call("Login"); err != nil {
		return identity.Tokens{}, err
	}
	return p.Tokens, nil
}

func (p *IdentityProvider) Logout(context.Context, string) error {
	return p.call("Logout")
}

func (p *IdentityProvider) ForgotPassword(context.Context, string) error {
	return p.call("ForgotPassword")
}

func (p *IdentityProvider) ConfirmForgotPassword(context.Context, string, string, string) error {
	return p.call("ConfirmForgotPassword")
}

func (p *IdentityProvider) AddUserToGroup(_ context.Context, email, group string) error {
	if err := p.call("AddUserToGroup"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Groups[email] = group
	return nil
}

var _ identity.Provider = (*IdentityProvider)(nil)
