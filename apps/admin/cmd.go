package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/user"
	schedulersvc "github.com/trezcool/piyuguide/services/scheduler"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf   *core.Config
	db     *sql.DB
	usrSvc *user.Service
	ticker schedulersvc.Ticker
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, version, ...)")
	fmt.Fprintln(cli.out, "  addadmin -name NAME -email EMAIL -office OFFICE_ID - create an office admin")
	fmt.Fprintln(cli.out, "  token -email EMAIL - print an API token for the user")
	fmt.Fprintln(cli.out, "  tick - run one counseling scheduler pass")
	fmt.Fprintln(cli.out, "  sweep-presence - mark inactive users offline")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addAdminCmd := flag.NewFlagSet("addadmin", flag.ContinueOnError)
	addAdminCmd.SetOutput(cli.out)
	addAdminName := addAdminCmd.String("name", "", "The admin's full name.")
	addAdminEmail := addAdminCmd.String("email", "", "The admin's email.")
	addAdminOffice := addAdminCmd.String("office", "", "The ID of the office they manage.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenEmail := tokenCmd.String("email", "", "The user's email.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "addadmin":
		if err := addAdminCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addAdminName == "" || *addAdminEmail == "" || *addAdminOffice == "" {
			addAdminCmd.Usage()
			return errHelp
		}
		return cli.addOfficeAdmin(ctx, *addAdminName, *addAdminEmail, *addAdminOffice)

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *tokenEmail == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(ctx, *tokenEmail)

	case "tick":
		return cli.tick(ctx)

	case "sweep-presence":
		return cli.sweepPresence(ctx)

	default:
		cli.printUsage()
		return errHelp
	}
}
