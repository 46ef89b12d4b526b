package main

import (
	"context"
	"fmt"

	echoapi "github.com/trezcool/piyuguide/apps/api/echo"
)

func (cli *commandLine) token(ctx context.Context, email string) error {
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	token, err := echoapi.GenerateToken(echoapi.GetUserClaims(usr, cli.conf), cli.conf)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

func (cli *commandLine) tick(ctx context.Context) error {
	rep, err := cli.ticker.Tick(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%+v\n", rep)
	return nil
}

func (cli *commandLine) sweepPresence(ctx context.Context) error {
	n, err := cli.usrSvc.SweepPresence(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d user(s) marked offline\n", n)
	return nil
}
