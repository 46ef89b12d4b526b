package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/piyuguide/apps/api/echo"
	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/counseling"
	"github.com/trezcool/piyuguide/core/user"
	inmemdb "github.com/trezcool/piyuguide/storage/database/inmem"
	testutil "github.com/trezcool/piyuguide/tests"
)

var usrRepo user.Repository

type tickerStub struct {
	calls int
	err   error
}

func (ts *tickerStub) Tick(context.Context) (counseling.TickReport, error) {
	ts.calls++
	return counseling.TickReport{Provisioned: 2}, ts.err
}

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	conf := testutil.Config()

	// start CLI
	var out bytes.Buffer
	return &commandLine{
		conf:   conf,
		usrSvc: user.NewService(usrRepo, conf, core.SystemClock),
		ticker: &tickerStub{},
		out:    &out,
	}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if !assert.ErrorIs(t, err, tt.wantErr) {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			} else if tt.wantErr != nil || tt.wantErrStr != "" {
				t.Errorf("cli.run() error = nil, wantErr %v %s", tt.wantErr, tt.wantErrStr)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, out := setup(t)

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	})
	assert.Contains(t, out.String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(_ context.Context, db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "0"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "reminders", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	})
}

func Test_commandLine_addOfficeAdmin(t *testing.T) {
	cli, out := setup(t)

	cmp := testutil.CreateCampus(t, usrRepo, "Main")
	off := testutil.CreateOffice(t, usrRepo, cmp.ID, "Guidance Office", true)
	other := testutil.CreateOffice(t, usrRepo, cmp.ID, "Registrar", false)
	testutil.CreateStudent(t, usrRepo, "Uma", "uma@school.test", cmp.ID)

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"addadmin"}, wantErr: errHelp},
		{name: "missing office", args: []string{"addadmin", "-name", "Ana", "-email", "ana@school.test"}, wantErr: errHelp},
		{name: "unknown office", args: []string{"addadmin", "-name", "Ana", "-email", "ana@school.test", "-office", "nope"}, wantErr: user.ErrOfficeNotFound},
		{name: "student email", args: []string{"addadmin", "-name", "Uma", "-email", "uma@school.test", "-office", off.ID}, wantErr: errNotAdminAccount},
		{name: "create", args: []string{"addadmin", "-name", "Ana", "-email", " ANA@school.test ", "-office", off.ID}},
		{name: "move", args: []string{"addadmin", "-name", "Ana", "-email", "ana@school.test", "-office", other.ID}},
	})

	usr, err := usrRepo.GetUserByEmail(context.Background(), "ana@school.test")
	require.NoError(t, err)
	assert.Equal(t, user.RoleOfficeAdmin, usr.Role)
	assert.Equal(t, cmp.ID, usr.CampusID)

	oa, err := usrRepo.GetOfficeAdminByUser(context.Background(), usr.ID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, oa.OfficeID)
	assert.Contains(t, out.String(), "now manages Registrar")
}

func Test_commandLine_token(t *testing.T) {
	cli, out := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Ana", "ana@school.test", user.RoleOfficeAdmin, "")

	runCLITests(t, cli, []cliTest{
		{name: "no email", args: []string{"token"}, wantErr: errHelp},
		{name: "unknown user", args: []string{"token", "-email", "ghost@school.test"}, wantErr: user.ErrNotFound},
	})

	// usage text from the failed runs is not part of the token
	out.Reset()
	runCLITests(t, cli, []cliTest{
		{name: "token", args: []string{"token", "-email", "Ana@School.test"}},
	})

	tokenStr := strings.TrimSpace(out.String())
	claims := new(echoapi.Claims)
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cli.conf.SecretKey), nil
	})
	require.NoError(t, err)
	assert.Equal(t, usr.ID, claims.Subject)
	assert.Equal(t, user.RoleOfficeAdmin, claims.Role)
}

func Test_commandLine_jobs(t *testing.T) {
	cli, out := setup(t)
	ticker := cli.ticker.(*tickerStub)

	usr := testutil.CreateUser(t, usrRepo, "Ana", "ana@school.test", user.RoleOfficeAdmin, "")
	require.NoError(t, usrRepo.SetPresence(context.Background(), usr.ID, true, time.Now().Add(-time.Hour)))

	runCLITests(t, cli, []cliTest{
		{name: "tick", args: []string{"tick"}},
		{name: "sweep", args: []string{"sweep-presence"}},
	})
	assert.Equal(t, 1, ticker.calls)
	assert.Contains(t, out.String(), "Provisioned:2")
	assert.Contains(t, out.String(), "1 user(s) marked offline")

	ticker.err = fmt.Errorf("db down")
	runCLITests(t, cli, []cliTest{
		{name: "tick failure", args: []string{"tick"}, wantErrStr: "db down"},
	})
}
