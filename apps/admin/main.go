package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	appfs "github.com/madrasa/backend/assets"
	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/course"
	"github.com/madrasa/backend/core/fulfillment"
	emailsvc "github.com/madrasa/backend/services/email"
	logsvc "github.com/madrasa/backend/services/logger"
	"github.com/madrasa/backend/storage/database"
	sqlxrepos "github.com/madrasa/backend/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	core.ParseEmailTemplates(appfs.FS, conf, logger)

	principals := sqlxrepos.NewPrincipalRepository(db)
	courses := sqlxrepos.NewCourseRepository(db)
	failures := sqlxrepos.NewFailureRepository(db)

	// start CLI
	cli := commandLine{
		conf:       conf,
		db:         db,
		out:        os.Stdout,
		validate:   validate,
		translator: translator,
		principals: principals,
		courses:    courses,
		fulfillment: fulfillment.NewService(fulfillment.Deps{
			Tx:             database.NewTransactor(db),
			Courses:        courses,
			Principals:     principals,
			Enrollments:    sqlxrepos.NewEnrollmentRepository(db),
			Milestones:     sqlxrepos.NewMilestoneRepository(db),
			Payments:       sqlxrepos.NewPaymentRepository(db),
			Failures:       failures,
			MailSvc:        emailsvc.NewService(conf, logger),
			Logger:         logger,
			Metrics:        core.NopMetrics(),
			OperatorEmails: conf.OperatorEmails,
		}),
	}
	err = cli.run(os.Args)

	_ = db.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
