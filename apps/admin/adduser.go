package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	now := user.NowFunc().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: email})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		if err = cli.usrRepo.CheckUniqueness(ctx, uname, email); err != nil {
			return err
		}
		usr = user.User{Username: uname, Email: email, Role: user.RoleUser, CreatedAt: now}
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	} else if usr.Name == "" {
		usr.Name = uname
	}
	if isAdmin {
		usr.Role = user.RoleAdmin
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if usr.ID == "" {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	return err
}
