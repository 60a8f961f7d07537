package main

import (
	"context"
	"fmt"
)

// cliAdminID marks the intents activated from the command line.
const cliAdminID = "cli"

func (cli *commandLine) activate(uname string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	in, err := cli.paySvc.AdminActivate(ctx, cliAdminID, usr.ID)
	if err != nil {
		return err
	}
	fmt.Printf("subscription of %s activated (intent %s)\n", usr.Email, in.ID)
	return nil
}

func (cli *commandLine) deactivate(uname string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if _, err = cli.paySvc.AdminDeactivate(ctx, usr.ID); err != nil {
		return err
	}
	fmt.Printf("subscription of %s deactivated\n", usr.Email)
	return nil
}

func (cli *commandLine) reconcile() error {
	report, err := cli.paySvc.ReconcilePending(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("activated: %d, reconciled: %d, reported: %d, failed: %d\n",
		report.Activated, report.Reconciled, report.Reported, report.Failed)
	return nil
}
