package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/learninghub/core/identity"
	"github.com/trezcool/learninghub/core/user"
	inmemdb "github.com/trezcool/learninghub/storage/database/inmem"
	testutil "github.com/trezcool/learninghub/tests"
)

type mapCache map[string]identity.Principal

func (c mapCache) Get(_ context.Context, sub string) (identity.Principal, bool) {
	p, ok := c[sub]
	return p, ok
}

func (c mapCache) Set(_ context.Context, sub string, p identity.Principal) error {
	c[sub] = p
	return nil
}

func (c mapCache) Delete(_ context.Context, subs ...string) error {
	for _, s := range subs {
		delete(c, s)
	}
	return nil
}

func setup(t *testing.T) (*user.Service, user.Repository, *testutil.IdentityProvider, mapCache) {
	t.Helper()
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	idp := testutil.NewIdentityProvider()
	cache := make(mapCache)
	return user.NewService(repo, idp, cache, testutil.NopLogger{}), repo, idp, cache
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		role      string
		signUpErr error
		wantRole  string
		wantGroup string
		wantErr   error
	}{
		{name: "member by default", role: "guest", wantRole: "Member", wantGroup: identity.GroupMember},
		{name: "teacher", role: "teacher", wantRole: "Teacher", wantGroup: identity.GroupTeacher},
		{name: "admin is not self assignable", role: "admin", wantRole: "Member", wantGroup: identity.GroupMember},
		{name: "provider conflict", role: "member", signUpErr: identity.ErrUserExists, wantErr: user.ErrEmailExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, idp, _ := setup(t)
			idp.Errs["SignUp"] = tt.signUpErr

			res, err := svc.Register(ctx, user.NewUser{
				Email: "jane@test.cd", Password: "secret123", FullName: "Jane", Phone: "+243", Role: tt.role,
			})
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, res.RoleName)
			assert.Equal(t, tt.wantGroup, idp.Groups["jane@test.cd"])

			usr, err := repo.GetUserByID(ctx, res.UserID)
			require.NoError(t, err)
			assert.Equal(t, "sub-jane@test.cd", usr.CognitoSub)
			assert.Equal(t, "Jane", usr.FullName.String)
			assert.NoError(t, usr.CheckPassword("secret123"))
		})
	}
}

func TestService_Register_existingLocalUser(t *testing.T) {
	svc, repo, idp, _ := setup(t)
	testutil.CreateUser(t, repo, "jane@test.cd", "", identity.RoleMember, true)

	_, err := svc.Register(context.Background(), user.NewUser{Email: "jane@test.cd", Password: "secret123", Role: "member"})
	assert.Equal(t, user.ErrEmailExists, errors.Cause(err))
	assert.Empty(t, idp.Calls)
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	svc, repo, idp, _ := setup(t)
	active := testutil.CreateUser(t, repo, "on@test.cd", "", identity.RoleMember, true)
	testutil.CreateUser(t, repo, "off@test.cd", "", identity.RoleMember, false)

	res, err := svc.Login(ctx, user.Credentials{Email: "on@test.cd", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "access", res.AccessToken)
	require.NotNil(t, res.User)
	assert.Equal(t, active.ID, res.User.ID)

	_, err = svc.Login(ctx, user.Credentials{Email: "off@test.cd", Password: "x"})
	assert.Equal(t, user.ErrInactive, errors.Cause(err))

	// provider-only accounts may still log in
	res, err = svc.Login(ctx, user.Credentials{Email: "ghost@test.cd", Password: "x"})
	require.NoError(t, err)
	assert.Nil(t, res.User)

	idp.Errs["Login"] = identity.ErrInvalidCredentials
	_, err = svc.Login(ctx, user.Credentials{Email: "on@test.cd", Password: "x"})
	assert.Equal(t, identity.ErrInvalidCredentials, errors.Cause(err))
}

func TestService_ForgotPassword_hidesUnknownEmails(t *testing.T) {
	svc, _, idp, _ := setup(t)
	idp.Errs["ForgotPassword"] = identity.ErrUserNotFound
	assert.NoError(t, svc.ForgotPassword(context.Background(), "ghost@test.cd"))

	idp.Errs["ForgotPassword"] = identity.ErrLimitExceeded
	assert.Equal(t, identity.ErrLimitExceeded, errors.Cause(svc.ForgotPassword(context.Background(), "ghost@test.cd")))
}

func TestService_ResetPassword(t *testing.T) {
	ctx := context.Background()
	svc, repo, idp, _ := setup(t)
	testutil.CreateUser(t, repo, "jane@test.cd", "oldpass1", identity.RoleMember, true)

	require.NoError(t, svc.ResetPassword(ctx, user.PasswordReset{Email: "jane@test.cd", Code: "123456", NewPassword: "newpass1"}))
	usr, err := repo.GetUserByEmail(ctx, "jane@test.cd")
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("newpass1"))

	idp.Errs["ConfirmForgotPassword"] = identity.ErrCodeMismatch
	err = svc.ResetPassword(ctx, user.PasswordReset{Email: "jane@test.cd", Code: "000000", NewPassword: "other123"})
	assert.Equal(t, identity.ErrCodeMismatch, errors.Cause(err))
}

func TestService_ConfirmEmail(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := setup(t)
	usr := user.User{Email: "jane@test.cd", IsActive: true}
	_, err := repo.CreateUserWithProfile(ctx, usr)
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmEmail(ctx, user.EmailCode{Email: "jane@test.cd", Code: "123456"}))
	got, err := repo.GetUserByEmail(ctx, "jane@test.cd")
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)

	// no local user: nothing to update
	assert.NoError(t, svc.ConfirmEmail(ctx, user.EmailCode{Email: "ghost@test.cd", Code: "123456"}))
}

func TestService_ResolvePrincipal(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, cache := setup(t)
	teacher := testutil.CreateUser(t, repo, "teach@test.cd", "", identity.RoleTeacher, true)
	inactive := testutil.CreateUser(t, repo, "off@test.cd", "", identity.RoleMember, false)

	tests := []struct {
		name     string
		claims   identity.Claims
		wantID   string
		wantRole int
		wantErr  error
	}{
		{
			name:     "by email",
			claims:   identity.Claims{Sub: "s1", Email: "TEACH@test.cd"},
			wantID:   teacher.ID,
			wantRole: identity.RoleTeacher,
		},
		{
			name:     "by username when no email",
			claims:   identity.Claims{Sub: "s2", Username: "teach@test.cd"},
			wantID:   teacher.ID,
			wantRole: identity.RoleTeacher,
		},
		{
			name:     "by subject",
			claims:   identity.Claims{Sub: teacher.CognitoSub},
			wantID:   teacher.ID,
			wantRole: identity.RoleTeacher,
		},
		{
			name:     "groups override the stored role",
			claims:   identity.Claims{Sub: "s3", Email: "teach@test.cd", Groups: []string{"Admin"}},
			wantID:   teacher.ID,
			wantRole: identity.RoleAdmin,
		},
		{name: "inactive", claims: identity.Claims{Sub: "s4", Email: inactive.Email}, wantErr: user.ErrNotFound},
		{name: "unknown", claims: identity.Claims{Sub: "s5", Email: "ghost@test.cd"}, wantErr: user.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := svc.ResolvePrincipal(ctx, tt.claims)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, p.LocalUserID)
			assert.Equal(t, tt.wantRole, p.RoleID)
			assert.Equal(t, identity.RoleName(tt.wantRole), p.RoleName)
			assert.Equal(t, tt.claims.Sub, p.Sub)
		})
	}

	_, ok := cache["s1"]
	assert.True(t, ok, "principal should be cached")
}

func TestService_AdminOperations(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, cache := setup(t)
	admin := testutil.CreateUser(t, repo, "boss@test.cd", "", identity.RoleAdmin, true)
	member := testutil.CreateUser(t, repo, "jane@test.cd", "", identity.RoleMember, true)
	cache[member.CognitoSub] = identity.Principal{LocalUserID: member.ID}

	teacher := "teacher"
	admRole := "admin"

	t.Run("promote member to teacher", func(t *testing.T) {
		usr, err := svc.UpdateByAdmin(ctx, member.ID, user.AdminUpdate{Role: &teacher})
		require.NoError(t, err)
		assert.Equal(t, identity.RoleTeacher, usr.RoleID)
		_, cached := cache[member.CognitoSub]
		assert.False(t, cached)
	})
	t.Run("admin role is not assignable", func(t *testing.T) {
		_, err := svc.UpdateByAdmin(ctx, member.ID, user.AdminUpdate{Role: &admRole})
		assert.Equal(t, user.ErrInvalidRole, errors.Cause(err))
	})
	t.Run("admin role is locked", func(t *testing.T) {
		_, err := svc.UpdateByAdmin(ctx, admin.ID, user.AdminUpdate{Role: &teacher})
		assert.Equal(t, user.ErrAdminRoleLocked, errors.Cause(err))
	})
	t.Run("admin cannot be deleted", func(t *testing.T) {
		assert.Equal(t, user.ErrAdminUndeletable, errors.Cause(svc.Delete(ctx, admin.ID)))
	})
	t.Run("soft delete then restore", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, member.ID))
		usr, err := repo.GetUserByID(ctx, member.ID)
		require.NoError(t, err)
		assert.False(t, usr.IsActive)

		users, page, err := svc.Query(ctx, user.QueryFilter{IsActive: false})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, member.ID, users[0].ID)

		require.NoError(t, svc.Restore(ctx, member.ID))
		usr, err = repo.GetUserByID(ctx, member.ID)
		require.NoError(t, err)
		assert.True(t, usr.IsActive)
	})
	t.Run("unknown user", func(t *testing.T) {
		assert.Equal(t, user.ErrNotFound, errors.Cause(svc.Delete(ctx, "nope")))
	})
}

func TestService_EnsureSingleAdmin(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := setup(t)
	old := testutil.CreateUser(t, repo, "old@test.cd", "", identity.RoleAdmin, true)
	next := testutil.CreateUser(t, repo, "next@test.cd", "", identity.RoleMember, false)

	require.NoError(t, svc.EnsureSingleAdmin(ctx, " NEXT@test.cd "))

	usr, err := repo.GetUserByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleMember, usr.RoleID)
	usr, err = repo.GetUserByID(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleAdmin, usr.RoleID)
	assert.True(t, usr.IsActive)

	assert.NoError(t, svc.EnsureSingleAdmin(ctx, "ghost@test.cd"))
	assert.NoError(t, svc.EnsureSingleAdmin(ctx, ""))
}
