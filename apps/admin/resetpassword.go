package main

import (
	"context"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	return cli.usrSvc.SetPassword(context.Background(), uname, pwd)
}
