package main

import (
	"context"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/user"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	if err := user.CheckPasswordStrength(pwd, usr.Email, usr.FullName.String); err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	return cli.usrRepo.UpdatePasswordHash(ctx, usr.Email, usr.PasswordHash)
}

func (cli *commandLine) ensureAdmin(email string) error {
	return cli.usrRepo.EnsureSingleAdmin(context.Background(), core.CleanString(email, true /* lower */))
}
