package user

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/identity"
)

const defaultPageLimit = 10

var (
	// errors
	ErrNotFound         = errors.New("user not found")
	ErrEmailExists      = errors.New("a user with this email already exists")
	ErrInvalidRole      = errors.New("role must be member or teacher")
	ErrAdminRoleLocked  = errors.New("the role of an admin cannot be changed")
	ErrAdminUndeletable = errors.New("an admin cannot be deleted")
	ErrInactive         = errors.New("account deactivated")

	errNothingToUpdate = errors.New("at least one field must be provided")
)

type (
	Repository interface {
		// CreateUserWithProfile inserts the user and its profile in one transaction.
		CreateUserWithProfile(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByCognitoSub(ctx context.Context, sub string) (User, error)
		// QueryUsers returns one page of users matching filter and the total match count.
		QueryUsers(ctx context.Context, filter QueryFilter) ([]User, int, error)
		// UpdateUserByAdmin only touches non-nil fields.
		UpdateUserByAdmin(ctx context.Context, id string, fullName, phone *string, roleID *int) (User, error)
		SetUserActive(ctx context.Context, id string, active bool) error
		UpdateEmailVerified(ctx context.Context, email string, verified bool) error
		UpdatePasswordHash(ctx context.Context, email string, hash []byte) error
		UpdateProfile(ctx context.Context, id string, data ProfileUpdate) (User, error)
		// EnsureSingleAdmin demotes all admins but email to member and promotes email to admin.
		EnsureSingleAdmin(ctx context.Context, email string) error
		// UpsertUser updates the user with the same email or creates it.
		UpsertUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo   Repository
		idp    identity.Provider
		cache  identity.PrincipalCache
		logger core.Logger
	}

	RegisterResult struct {
		UserID        string `json:"userId"`
		Email         string `json:"email"`
		RoleName      string `json:"roleName"`
		UserConfirmed bool   `json:"userConfirmed"`
	}

	LoginResult struct {
		identity.Tokens
		User *User `json:"user"`
	}
)

// NewService creates a user Service. cache may be nil.
func NewService(repo Repository, idp identity.Provider, cache identity.PrincipalCache, logger core.Logger) *Service {
	return &Service{repo: repo, idp: idp, cache: cache, logger: logger}
}

// Register signs the user up with the identity provider, then creates the local user and profile.
func (svc *Service) Register(ctx context.Context, nu NewUser) (RegisterResult, error) {
	if _, err := svc.repo.GetUserByEmail(ctx, nu.Email); err == nil {
		return RegisterResult{}, ErrEmailExists
	} else if errors.Cause(err) != ErrNotFound {
		return RegisterResult{}, errors.Wrap(err, "finding user by email")
	}

	res, err := svc.idp.SignUp(ctx, identity.SignUpInput{
		Email:    nu.Email,
		Password: nu.Password,
		FullName: nu.FullName,
		Phone:    nu.Phone,
	})
	if err != nil {
		if errors.Cause(err) == identity.ErrUserExists {
			return RegisterResult{}, ErrEmailExists
		}
		return RegisterResult{}, errors.Wrap(err, "signing up")
	}

	roleID := SelfAssignableRoleID(nu.Role)
	if err := svc.idp.AddUserToGroup(ctx, nu.Email, identity.GroupForRole(roleID)); err != nil {
		return RegisterResult{}, errors.Wrap(err, "adding user to group")
	}

	usr := User{
		Email:         nu.Email,
		RoleID:        roleID,
		IsActive:      true,
		EmailVerified: res.Confirmed,
		CognitoSub:    res.Sub,
	}
	usr.FullName.SetValid(nu.FullName)
	usr.Phone.SetValid(nu.Phone)
	if err := usr.SetPassword(nu.Password); err != nil {
		return RegisterResult{}, errors.Wrap(err, "hashing password")
	}

	usr, err = svc.repo.CreateUserWithProfile(ctx, usr)
	if err != nil {
		return RegisterResult{}, errors.Wrap(err, "creating user with profile")
	}
	return RegisterResult{
		UserID:        usr.ID,
		Email:         usr.Email,
		RoleName:      identity.RoleName(usr.RoleID),
		UserConfirmed: res.Confirmed,
	}, nil
}

func (svc *Service) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	var local *User
	usr, err := svc.repo.GetUserByEmail(ctx, creds.Email)
	switch {
	case err == nil:
		if !usr.IsActive {
			return LoginResult{}, ErrInactive
		}
		local = &usr
	case errors.Cause(err) != ErrNotFound:
		return LoginResult{}, errors.Wrap(err, "finding user by email")
	}

	tokens, err := svc.idp.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		return LoginResult{}, errors.Wrap(err, "logging in")
	}
	return LoginResult{Tokens: tokens, User: local}, nil
}

func (svc *Service) Logout(ctx context.Context, accessToken string) error {
	return errors.Wrap(svc.idp.Logout(ctx, accessToken), "logging out")
}

func (svc *Service) ConfirmEmail(ctx context.Context, data EmailCode) error {
	if err := svc.idp.ConfirmSignUp(ctx, data.Email, data.Code); err != nil {
		return errors.Wrap(err, "confirming sign up")
	}
	if err := svc.repo.UpdateEmailVerified(ctx, data.Email, true); err != nil && errors.Cause(err) != ErrNotFound {
		return errors.Wrap(err, "updating email verified")
	}
	return nil
}

func (svc *Service) ResendConfirmationCode(ctx context.Context, email string) error {
	return errors.Wrap(svc.idp.ResendConfirmationCode(ctx, email), "resending confirmation code")
}

// ForgotPassword never discloses whether email belongs to an account.
func (svc *Service) ForgotPassword(ctx context.Context, email string) error {
	if err := svc.idp.ForgotPassword(ctx, email); err != nil && errors.Cause(err) != identity.ErrUserNotFound {
		return errors.Wrap(err, "requesting password reset")
	}
	return nil
}

func (svc *Service) ResetPassword(ctx context.Context, data PasswordReset) error {
	if err := svc.idp.ConfirmForgotPassword(ctx, data.Email, data.Code, data.NewPassword); err != nil {
		return errors.Wrap(err, "confirming password reset")
	}
	var usr User
	if err := usr.SetPassword(data.NewPassword); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	if err := svc.repo.UpdatePasswordHash(ctx, data.Email, usr.PasswordHash); err != nil && errors.Cause(err) != ErrNotFound {
		return errors.Wrap(err, "updating password hash")
	}
	return nil
}

// ResolvePrincipal finds the local user behind verified token claims.
// Lookup is by email first, then by provider subject. Inactive users are not found.
func (svc *Service) ResolvePrincipal(ctx context.Context, claims identity.Claims) (identity.Principal, error) {
	if svc.cache != nil && claims.Sub != "" {
		if p, ok := svc.cache.Get(ctx, claims.Sub); ok {
			return withGroups(p, claims), nil
		}
	}

	var (
		usr   User
		found bool
		err   error
	)
	for _, email := range claims.LookupEmails() {
		if usr, err = svc.repo.GetUserByEmail(ctx, email); err == nil {
			found = true
			break
		} else if errors.Cause(err) != ErrNotFound {
			return identity.Principal{}, errors.Wrap(err, "finding user by email")
		}
	}
	if !found && claims.Sub != "" {
		if usr, err = svc.repo.GetUserByCognitoSub(ctx, claims.Sub); err == nil {
			found = true
		} else if errors.Cause(err) != ErrNotFound {
			return identity.Principal{}, errors.Wrap(err, "finding user by sub")
		}
	}
	if !found || !usr.IsActive {
		return identity.Principal{}, ErrNotFound
	}

	p := identity.Principal{
		Sub:         claims.Sub,
		Email:       usr.Email,
		RoleID:      usr.RoleID,
		LocalUserID: usr.ID,
	}
	if svc.cache != nil && claims.Sub != "" {
		if err := svc.cache.Set(ctx, claims.Sub, p); err != nil {
			svc.logger.Warn(fmt.Sprintf("caching principal: %v", err), err)
		}
	}
	return withGroups(p, claims), nil
}

// withGroups applies token groups on top of the stored role. No groups keeps the stored role.
func withGroups(p identity.Principal, claims identity.Claims) identity.Principal {
	p.Sub = claims.Sub
	p.Groups = claims.Groups
	if len(claims.Groups) > 0 {
		p.RoleID = identity.RoleFromGroups(claims.Groups)
	}
	p.RoleName = identity.RoleName(p.RoleID)
	return p
}

func (svc *Service) forget(ctx context.Context, usr User) {
	if svc.cache == nil || usr.CognitoSub == "" {
		return
	}
	if err := svc.cache.Delete(ctx, usr.CognitoSub); err != nil {
		svc.logger.Warn(fmt.Sprintf("evicting cached principal: %v", err), err)
	}
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]User, core.Pagination, error) {
	filter.Clean()
	users, total, err := svc.repo.QueryUsers(ctx, filter)
	if err != nil {
		return nil, core.Pagination{}, errors.Wrap(err, "querying users")
	}
	return users, core.NewPagination(filter.Page, filter.Limit, total), nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

// CreateByAdmin registers a user on behalf of an Admin.
func (svc *Service) CreateByAdmin(ctx context.Context, nu NewUser) (RegisterResult, error) {
	return svc.Register(ctx, nu)
}

func (svc *Service) UpdateByAdmin(ctx context.Context, id string, data AdminUpdate) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, errors.Wrap(err, "finding user by ID")
	}

	var roleID *int
	if data.Role != nil {
		rid, ok := identity.RoleID(*data.Role)
		if !ok || (rid != identity.RoleMember && rid != identity.RoleTeacher) {
			return User{}, ErrInvalidRole
		}
		if usr.IsAdmin() {
			return User{}, ErrAdminRoleLocked
		}
		roleID = &rid
	}

	updated, err := svc.repo.UpdateUserByAdmin(ctx, id, data.FullName, data.Phone, roleID)
	if err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	svc.forget(ctx, usr)
	return updated, nil
}

// Delete soft deletes a user.
func (svc *Service) Delete(ctx context.Context, id string) error {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	if usr.IsAdmin() {
		return ErrAdminUndeletable
	}
	if err := svc.repo.SetUserActive(ctx, id, false); err != nil {
		return errors.Wrap(err, "deactivating user")
	}
	svc.forget(ctx, usr)
	return nil
}

func (svc *Service) Restore(ctx context.Context, id string) error {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	if err := svc.repo.SetUserActive(ctx, id, true); err != nil {
		return errors.Wrap(err, "activating user")
	}
	svc.forget(ctx, usr)
	return nil
}

func (svc *Service) UpdateProfile(ctx context.Context, id string, data ProfileUpdate) (User, error) {
	usr, err := svc.repo.UpdateProfile(ctx, id, data)
	return usr, errors.Wrap(err, "updating profile")
}

// SetAvatar stores the object key of a freshly uploaded avatar.
func (svc *Service) SetAvatar(ctx context.Context, id, key string) (User, error) {
	return svc.UpdateProfile(ctx, id, ProfileUpdate{AvatarS3Key: &key})
}

// EnsureSingleAdmin makes email the only Admin. A missing user is logged, not fatal.
func (svc *Service) EnsureSingleAdmin(ctx context.Context, email string) error {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		svc.logger.Warn("admin email not configured: skipping single admin check")
		return nil
	}
	if err := svc.repo.EnsureSingleAdmin(ctx, email); err != nil {
		if errors.Cause(err) == ErrNotFound {
			svc.logger.Warn(fmt.Sprintf("admin user %q not found: no admin promoted", email))
			return nil
		}
		return errors.Wrap(err, "ensuring single admin")
	}
	svc.logger.Info(fmt.Sprintf("single admin ensured: %s", email))
	return nil
}
