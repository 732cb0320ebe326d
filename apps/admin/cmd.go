package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"strings"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword       // mockable
	gooseRunFunc     = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sql.DB
	usrSvc     user.Service
	mailSvc    core.EmailService // waited on before exiting
	validate   *validator.Validate
	translator ut.Translator
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]                       - run a goose command (up, down, status, ...)")
	fmt.Println("  adduser -email EMAIL [-name NAME] [-role ROLE] - create a user")
	fmt.Println("  resetpassword -email EMAIL | -id ID          - reset a user's password")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's name.")
	addUserRole := addUserCmd.String("role", user.DefaultRole, "The user's role: "+strings.Join(user.AllRoles, "|"))

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")
	resetPasswordID := resetPasswordCmd.Int("id", 0, "The user's ID, required when several users share the email.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		usr, err := cli.addUser(*addUserName, *addUserEmail, pwd, *addUserRole)
		if err != nil {
			return err
		}
		if cli.mailSvc != nil {
			cli.mailSvc.Wait() // welcome email
		}
		fmt.Printf("user #%d (%s) created\n", usr.ID, usr.Email)
		return nil

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" && *resetPasswordID == 0 {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordID, *resetPasswordEmail, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pwd), nil
}

func (cli *commandLine) migrate(command string, args ...string) error {
	return gooseRunFunc(command, cli.db, args...)
}

func (cli *commandLine) addUser(name, email, pwd, role string) (user.User, error) {
	nu := user.NewUser{Name: name, Email: email, Password: pwd, Role: role}
	if err := nu.Validate(cli.validate); err != nil {
		return user.User{}, cli.translate(err)
	}
	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return user.User{}, cli.translate(err)
	}
	return usr, nil
}

// resetPassword sets pwd on the user identified by id, or by email when id is 0.
func (cli *commandLine) resetPassword(id int, email, pwd string) error {
	ctx := context.Background()
	if id == 0 {
		users, err := cli.usrSvc.Filter(ctx, user.QueryFilter{Email: core.CleanString(email, true /* lower */)})
		if err != nil {
			return err
		}
		switch len(users) {
		case 0:
			return user.ErrNotFound
		case 1:
			id = users[0].ID
		default:
			return user.ErrAmbiguousEmail
		}
	}

	rp := user.ResetUserPassword{ID: id, Password: pwd}
	if err := rp.Validate(cli.validate); err != nil {
		return cli.translate(err)
	}
	return cli.usrSvc.ResetPassword(ctx, rp)
}

// translate turns validation errors into a readable error, other errors are returned as is.
func (cli *commandLine) translate(err error) error {
	var fldErrs map[string]string
	switch vErr := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		fldErrs = core.TranslateErrors(vErr, cli.translator)
	case *core.ValidationError:
		fldErrs = make(map[string]string, len(vErr.Fields))
		for _, f := range vErr.Fields {
			fldErrs[f.Field] = f.Error
		}
	default:
		return err
	}
	return errors.New(strings.Join(core.SortedValues(fldErrs), "; "))
}
