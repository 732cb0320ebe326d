package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/fs"
	emailsvc "github.com/trezcool/academia/services/email"
	"github.com/trezcool/academia/storage/database/inmem"
	"github.com/trezcool/academia/tests"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	t.Helper()
	usrRepo = inmemdb.NewUserRepository(inmemdb.Open())

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator, core.PasswordPolicyBasic)

	return &commandLine{
		usrSvc:     user.NewService(usrRepo, nil, user.Options{}),
		validate:   validate,
		translator: translator,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string   // prompted password
	wantErr    error
	wantErrStr string
}

func (tt cliTest) run(t *testing.T, cli *commandLine) error {
	t.Helper()
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(tt.pwd), nil }

	err := cli.run(append([]string{"admin"}, tt.args...))
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
	return err
}

func Test_commandLine_help(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, cli)
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var gotCommand string
	var gotArgs []string
	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		gotCommand, gotArgs = command, args
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_courses", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(t, cli); err == nil {
				assert.Equal(t, tt.args[1], gotCommand)
				assert.Equal(t, tt.args[2:], gotArgs)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"adduser", "-email", "ada@test.cd"}, wantErr: errHelp},
		{name: "invalid email", args: []string{"adduser", "-email", "lol"}, pwd: "secret1", wantErrStr: "email must be a valid email address"},
		{
			name: "invalid role", args: []string{"adduser", "-email", "ada@test.cd", "-role", "admin"}, pwd: "secret1",
			wantErrStr: "role must be one of [teacher student]",
		},
		{
			name: "short password", args: []string{"adduser", "-email", "ada@test.cd"}, pwd: "123",
			wantErrStr: "password must be at least 6 characters in length",
		},
		{name: "teacher", args: []string{"adduser", "-email", "Ada@test.cd", "-name", "Ada", "-role", "Teacher"}, pwd: "secret1"},
		{name: "student by default", args: []string{"adduser", "-email", "bob@test.cd"}, pwd: "secret1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, cli)
		})
	}

	users, err := usrRepo.QueryUsers(context.Background(), user.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, "Ada@test.cd", users[0].Email)
	assert.Equal(t, "Ada", users[0].Name.String)
	assert.Equal(t, "Teacher", users[0].Role)
	assert.True(t, users[0].IsTeacher())
	assert.NoError(t, users[0].CheckPassword("secret1"))

	assert.Equal(t, "bob@test.cd", users[1].Email)
	assert.False(t, users[1].Name.Valid)
	assert.Equal(t, user.RoleStudent, users[1].Role)
}

func Test_commandLine_addUser_welcomeEmail(t *testing.T) {
	cli := setup(t)
	logger := new(testutil.Logger)
	core.ParseEmailTemplates(appfs.FS, logger, true)
	emailsvc.ResetSentMessages()

	cli.mailSvc = emailsvc.NewConsoleService(testutil.Config(), logger)
	cli.usrSvc = user.NewService(usrRepo, cli.mailSvc, user.Options{SendWelcomeEmail: true})

	tt := cliTest{args: []string{"adduser", "-email", "ada@test.cd", "-name", "Ada"}, pwd: "secret1"}
	require.NoError(t, tt.run(t, cli))

	// the command returns once the email is out, so exiting right after loses nothing
	sent := emailsvc.GetSentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@test.cd", sent[0].To[0].Address)
	assert.Equal(t, 0, logger.Count())
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	ada := testutil.CreateUser(t, usrRepo, "Ada", "ada@test.cd", "secret1", user.RoleTeacher)
	twin1 := testutil.CreateUser(t, usrRepo, "Twin", "twin@test.cd", "secret1", user.RoleStudent)
	twin2 := testutil.CreateUser(t, usrRepo, "Twin", "twin@test.cd", "secret1", user.RoleStudent)

	tests := []struct {
		cliTest
		changed *user.User
	}{
		{cliTest: cliTest{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "email but no password", args: []string{"resetpassword", "-email", ada.Email}, wantErr: errHelp}},
		{cliTest: cliTest{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, pwd: "secret2", wantErr: user.ErrNotFound}},
		{cliTest: cliTest{name: "unknown ID", args: []string{"resetpassword", "-id", "999"}, pwd: "secret2", wantErr: user.ErrNotFound}},
		{
			cliTest: cliTest{
				name: "short password", args: []string{"resetpassword", "-email", ada.Email}, pwd: "123",
				wantErrStr: "password must be at least 6 characters in length",
			},
		},
		{cliTest: cliTest{name: "shared email", args: []string{"resetpassword", "-email", twin1.Email}, pwd: "secret2", wantErr: user.ErrAmbiguousEmail}},
		{cliTest: cliTest{name: "reset with email", args: []string{"resetpassword", "-email", "ADA@test.cd"}, pwd: "secret2"}, changed: &ada},
		{cliTest: cliTest{name: "reset with ID", args: []string{"resetpassword", "-id", strconv.Itoa(twin2.ID)}, pwd: "secret3"}, changed: &twin2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(t, cli); err != nil || tt.changed == nil {
				return
			}
			refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: tt.changed.ID})
			require.NoError(t, err)
			assert.False(t, bytes.Equal(refreshed.PasswordHash, tt.changed.PasswordHash), "failed to update new password")
			assert.NoError(t, refreshed.CheckPassword(tt.pwd))
		})
	}

	refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: twin1.ID})
	require.NoError(t, err)
	assert.Equal(t, twin1.PasswordHash, refreshed.PasswordHash)
}
