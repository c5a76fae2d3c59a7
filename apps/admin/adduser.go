package main

import (
	"context"
	"fmt"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/identity"
	"github.com/trezcool/learninghub/core/user"
)

// addUser updates or creates a confirmed, active user.User
func (cli *commandLine) addUser(email, name, role, pwd string) error {
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)

	roleID, ok := identity.RoleID(role)
	if !ok || roleID == identity.RoleGuest {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "role must be member, teacher or admin"})
	}
	if err := user.CheckPasswordStrength(pwd, email, name); err != nil {
		return err
	}

	usr := user.User{
		Email:         email,
		RoleID:        roleID,
		IsActive:      true,
		EmailVerified: true,
	}
	if name != "" {
		usr.FullName.SetValid(name)
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr, err := cli.usrRepo.UpsertUser(context.Background(), usr)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %s saved as %s\n", usr.Email, usr.RoleName)
	return nil
}
