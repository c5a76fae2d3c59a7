package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/learninghub/core/exam"
	"github.com/trezcool/learninghub/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	usrRepo  user.Repository
	examSvc  *exam.Service
	validate *validator.Validate
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, up-to VERSION...)")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL [-name NAME] [-role member|teacher|admin] - create or update a local user")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset a local user's password")
	fmt.Fprintln(cli.out, "  ensureadmin -email EMAIL - make EMAIL the only Admin")
	fmt.Fprintln(cli.out, "  importquestions -file FILE -author EMAIL - import questions from a YAML file")
}

func (cli *commandLine) readPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserRole := addUserCmd.String("role", "member", "member, teacher or admin.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	ensureAdminCmd := flag.NewFlagSet("ensureadmin", flag.ExitOnError)
	ensureAdminEmail := ensureAdminCmd.String("email", "", "The email of the only Admin.")

	importCmd := flag.NewFlagSet("importquestions", flag.ExitOnError)
	importFile := importCmd.String("file", "", "The YAML file listing the questions.")
	importAuthor := importCmd.String("author", "", "The email of the Teacher or Admin owning the questions.")

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
		if *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserEmail, *addUserName, *addUserRole, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "ensureadmin":
		if err := ensureAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *ensureAdminEmail == "" {
			ensureAdminCmd.Usage()
			return errHelp
		}
		return cli.ensureAdmin(*ensureAdminEmail)

	case "importquestions":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importFile == "" || *importAuthor == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importQuestions(*importFile, *importAuthor)

	default:
		cli.printUsage()
		return errHelp
	}
}
