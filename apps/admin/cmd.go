package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sqlx.DB
	engine  string
	usrRepo user.Repository
	usrSvc  user.ServiceInterface
	paySvc  payment.ServiceInterface
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-name NAME] [-admin] - create or update a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  activate -username USERNAME|EMAIL - activate user's subscription")
	fmt.Println("  deactivate -username USERNAME|EMAIL - deactivate user's subscription")
	fmt.Println("  reconcile - reconcile the pending payment intents")
}

// readPassword prompts for a password; an empty one prints the usage of cmd.
func readPassword(cmd *flag.FlagSet) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's name.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant the admin role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	activateCmd := flag.NewFlagSet("activate", flag.ContinueOnError)
	activateUname := activateCmd.String("username", "", "The user's username or email.")

	deactivateCmd := flag.NewFlagSet("deactivate", flag.ContinueOnError)
	deactivateUname := deactivateCmd.String("username", "", "The user's username or email.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := readPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := readPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "activate":
		if err := activateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *activateUname == "" {
			activateCmd.Usage()
			return errHelp
		}
		return cli.activate(*activateUname)

	case "deactivate":
		if err := deactivateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *deactivateUname == "" {
			deactivateCmd.Usage()
			return errHelp
		}
		return cli.deactivate(*deactivateUname)

	case "reconcile":
		return cli.reconcile()

	default:
		cli.printUsage()
		return errHelp
	}
}
