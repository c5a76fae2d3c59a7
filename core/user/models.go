package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/identity"
)

type User struct {
	ID            string      `db:"id" json:"id"`
	Email         string      `db:"email" json:"email"`
	PasswordHash  []byte      `db:"password_hash" json:"-"`
	Phone         null.String `db:"phone" json:"phone"`
	RoleID        int         `db:"role_id" json:"role_id"`
	RoleName      string      `db:"role_name" json:"role_name"`
	IsActive      bool        `db:"is_active" json:"is_active"`
	EmailVerified bool        `db:"email_verified" json:"email_verified"`
	CognitoSub    string      `db:"cognito_sub" json:"-"`
	FullName      null.String `db:"full_name" json:"full_name"`
	AvatarS3Key   null.String `db:"avatar_s3_key" json:"avatar_s3_key"`
	Bio           null.String `db:"bio" json:"bio"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"` // UTC
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.RoleID == identity.RoleAdmin }
func (u *User) IsTeacher() bool { return u.RoleID == identity.RoleTeacher }

// SelfAssignableRoleID maps a requested role name to member (default) or teacher.
func SelfAssignableRoleID(role string) int {
	if id, ok := identity.RoleID(role); ok && id == identity.RoleTeacher {
		return identity.RoleTeacher
	}
	return identity.RoleMember
}

// NewUser contains information needed to register a new User.
type NewUser struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	FullName string `json:"fullName" validate:"required,max=255"`
	Phone    string `json:"phone" validate:"required,max=50"`
	Role     string `json:"role" validate:"required,rolename"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FullName = core.CleanString(nu.FullName)
	nu.Phone = core.CleanString(nu.Phone)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	return validate.Struct(nu)
}

// AdminUpdate defines what an Admin may modify on an existing User.
type AdminUpdate struct {
	FullName *string `json:"fullName" validate:"omitempty,max=255"`
	Phone    *string `json:"phone" validate:"omitempty,max=50"`
	Role     *string `json:"role"`
}

func (au *AdminUpdate) Validate(validate *validator.Validate) error {
	au.FullName = core.CleanStringPtr(au.FullName)
	au.Phone = core.CleanStringPtr(au.Phone)
	au.Role = core.CleanStringPtr(au.Role, true /* lower */)
	if au.FullName == nil && au.Phone == nil && au.Role == nil {
		return core.NewValidationError(errNothingToUpdate)
	}
	return validate.Struct(au)
}

// ProfileUpdate defines what a User may modify on their own profile.
type ProfileUpdate struct {
	FullName    *string `json:"fullName" validate:"omitempty,max=255"`
	Phone       *string `json:"phone" validate:"omitempty,max=50"`
	Bio         *string `json:"bio" validate:"omitempty,max=2000"`
	AvatarS3Key *string `json:"avatarS3Key" validate:"omitempty,max=1024"`
}

func (pu *ProfileUpdate) Validate(validate *validator.Validate) error {
	pu.FullName = core.CleanStringPtr(pu.FullName)
	pu.Phone = core.CleanStringPtr(pu.Phone)
	pu.Bio = core.CleanStringPtr(pu.Bio)
	pu.AvatarS3Key = core.CleanStringPtr(pu.AvatarS3Key)
	if pu.FullName == nil && pu.Phone == nil && pu.Bio == nil && pu.AvatarS3Key == nil {
		return core.NewValidationError(errNothingToUpdate)
	}
	return validate.Struct(pu)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Page     int    `query:"page"`
	Limit    int    `query:"limit"`
	IsActive bool   `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Page, qf.Limit, _ = core.PageOffset(qf.Page, qf.Limit, defaultPageLimit)
}

func (qf QueryFilter) Offset() int {
	_, _, offset := core.PageOffset(qf.Page, qf.Limit, defaultPageLimit)
	return offset
}

type (
	// Credentials are the auth request payloads.
	Credentials struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	EmailCode struct {
		Email string `json:"email" validate:"required,email"`
		Code  string `json:"code" validate:"required,max=16"`
	}

	EmailOnly struct {
		Email string `json:"email" validate:"required,email"`
	}

	PasswordReset struct {
		Email       string `json:"email" validate:"required,email"`
		Code        string `json:"code" validate:"required,max=16"`
		NewPassword string `json:"newPassword" validate:"required,min=6,max=128"`
	}
)

func (c *Credentials) Validate(validate *validator.Validate) error {
	c.Email = core.CleanString(c.Email, true /* lower */)
	return validate.Struct(c)
}

func (ec *EmailCode) Validate(validate *validator.Validate) error {
	ec.Email = core.CleanString(ec.Email, true /* lower */)
	ec.Code = core.CleanString(ec.Code)
	return validate.Struct(ec)
}

func (eo *EmailOnly) Validate(validate *validator.Validate) error {
	eo.Email = core.CleanString(eo.Email, true /* lower */)
	return validate.Struct(eo)
}

func (pr *PasswordReset) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	pr.Code = core.CleanString(pr.Code)
	return validate.Struct(pr)
}
