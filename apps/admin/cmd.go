package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/course"
	"github.com/madrasa/backend/core/fulfillment"
	"github.com/madrasa/backend/core/principal"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf        *core.Config
	db          *sqlx.DB
	out         io.Writer
	validate    *validator.Validate
	translator  ut.Translator
	principals  principal.Repository
	courses     course.Repository
	fulfillment *fulfillment.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                   - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  addprincipal -name NAME -email EMAIL -role ROLE          - create a principal")
	fmt.Fprintln(cli.out, "  addcourse -title TITLE -professor EMAIL [-price CENTS]   - create a course")
	fmt.Fprintln(cli.out, "  publish -course ID [-unpublish]                          - publish or unpublish a course")
	fmt.Fprintln(cli.out, "  failures                                                 - list enrollment failures awaiting review")
	fmt.Fprintln(cli.out, "  retry -payment ID | -all [-workers N]                    - retry failed enrollments")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addPrincipalCmd := flag.NewFlagSet("addprincipal", flag.ContinueOnError)
	addPrincipalName := addPrincipalCmd.String("name", "", "The principal's display name.")
	addPrincipalEmail := addPrincipalCmd.String("email", "", "The principal's email.")
	addPrincipalRole := addPrincipalCmd.String("role", string(principal.RoleStudent), "One of STUDENT, PROFESSOR, ADMIN.")

	addCourseCmd := flag.NewFlagSet("addcourse", flag.ContinueOnError)
	addCourseTitle := addCourseCmd.String("title", "", "The course title.")
	addCourseProf := addCourseCmd.String("professor", "", "The owning professor's email.")
	addCoursePrice := addCourseCmd.Int64("price", 0, "The price in minor units; 0 makes the course free.")
	addCourseCurrency := addCourseCmd.String("currency", "", "ISO 4217 currency code; defaults to the configured one.")
	addCourseLessons := addCourseCmd.Int("lessons", 0, "The number of lessons.")
	addCoursePublish := addCourseCmd.Bool("publish", false, "Publish the course right away.")

	publishCmd := flag.NewFlagSet("publish", flag.ContinueOnError)
	publishCourse := publishCmd.String("course", "", "The course ID.")
	publishUndo := publishCmd.Bool("unpublish", false, "Unpublish instead.")

	retryCmd := flag.NewFlagSet("retry", flag.ContinueOnError)
	retryPayment := retryCmd.String("payment", "", "The payment whose enrollment failed.")
	retryAll := retryCmd.Bool("all", false, "Retry every payment with an unresolved failure.")
	retryWorkers := retryCmd.Int("workers", 4, "How many retries run concurrently with -all.")

	for _, fs := range []*flag.FlagSet{addPrincipalCmd, addCourseCmd, publishCmd, retryCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addprincipal":
		if err := addPrincipalCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addPrincipalName == "" || *addPrincipalEmail == "" {
			addPrincipalCmd.Usage()
			return errHelp
		}
		return cli.addPrincipal(principal.NewPrincipal{
			Name:  *addPrincipalName,
			Email: *addPrincipalEmail,
			Role:  principal.Role(*addPrincipalRole),
		})

	case "addcourse":
		if err := addCourseCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addCourseTitle == "" || *addCourseProf == "" {
			addCourseCmd.Usage()
			return errHelp
		}
		nc := course.NewCourse{
			Title:       *addCourseTitle,
			Currency:    *addCourseCurrency,
			IsPublished: *addCoursePublish,
			LessonCount: *addCourseLessons,
		}
		addCourseCmd.Visit(func(f *flag.Flag) {
			if f.Name == "price" {
				nc.PriceCents = addCoursePrice
			}
		})
		return cli.addCourse(*addCourseProf, nc)

	case "publish":
		if err := publishCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *publishCourse == "" {
			publishCmd.Usage()
			return errHelp
		}
		return cli.publish(*publishCourse, !*publishUndo)

	case "failures":
		return cli.listFailures()

	case "retry":
		if err := retryCmd.Parse(args[2:]); err != nil {
			return err
		}
		switch {
		case *retryAll && *retryPayment == "":
			if *retryWorkers < 1 {
				retryCmd.Usage()
				return errHelp
			}
			return cli.retryAll(*retryWorkers)
		case !*retryAll && *retryPayment != "":
			return cli.retry(*retryPayment)
		default:
			retryCmd.Usage()
			return errHelp
		}

	default:
		cli.printUsage()
		return errHelp
	}
}

// validationError flattens translated validator errors into a single error.
func (cli *commandLine) validationError(err error) error {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return err
	}
	msg := ""
	for i, fe := range vErrs {
		if i > 0 {
			msg += "; "
		}
		msg += fe.Field() + ": " + fe.Translate(cli.translator)
	}
	return errors.New(msg)
}
