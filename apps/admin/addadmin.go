package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/user"
)

var errNotAdminAccount = errors.New("this email belongs to a user who is not an office admin")

// addOfficeAdmin creates an office admin, or assigns an existing one to the office.
func (cli *commandLine) addOfficeAdmin(ctx context.Context, name, email, officeID string) error {
	off, err := cli.usrSvc.GetOffice(ctx, officeID)
	if err != nil {
		return err
	}

	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	switch {
	case core.IsNotFound(err):
		usr, err = cli.usrSvc.Create(ctx, user.NewUser{
			Name:     name,
			Email:    email,
			Role:     user.RoleOfficeAdmin,
			CampusID: off.CampusID,
		})
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
	case err != nil:
		return err
	case usr.Role != user.RoleOfficeAdmin:
		return errNotAdminAccount
	}

	if _, err = cli.usrSvc.AddOfficeAdmin(ctx, usr.ID, off.ID); err != nil {
		return errors.Wrap(err, "assigning office")
	}
	fmt.Fprintf(cli.out, "%s <%s> now manages %s (user id %s)\n", usr.Name, usr.Email, off.Name, usr.ID)
	return nil
}
