package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core/session"
	"github.com/welfareschool/backend/services/identity"
)

// addUser registers a new identity, or sets the password of an existing one.
// An admin flag is applied either way.
func (cli *commandLine) addUser(name, email, pwd string, isAdmin bool) error {
	ctx := context.Background()

	id, err := cli.identity.Register(ctx, session.Registration{
		Name:            name,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
	})
	switch {
	case err == nil:
	case errors.Cause(err) == identity.ErrEmailInUse:
		if err = cli.identity.SetPassword(ctx, email, pwd); err != nil {
			return err
		}
		acc, err := cli.accounts.GetByEmail(ctx, email)
		if err != nil {
			return errors.Wrap(err, "getting account")
		}
		id.UID = acc.ID
	default:
		return err
	}

	if isAdmin {
		if err = cli.accounts.SetAdmin(ctx, id.UID, true); err != nil {
			return errors.Wrap(err, "granting admin role")
		}
	}
	return nil
}
