package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	appfs "github.com/madrasa/backend/assets"
	echoapi "github.com/madrasa/backend/apps/api/echo"
	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/access"
	"github.com/madrasa/backend/core/course"
	"github.com/madrasa/backend/core/enrollment"
	"github.com/madrasa/backend/core/fulfillment"
	emailsvc "github.com/madrasa/backend/services/email"
	logsvc "github.com/madrasa/backend/services/logger"
	metricsvc "github.com/madrasa/backend/services/metrics"
	"github.com/madrasa/backend/storage/database"
	sqlxrepos "github.com/madrasa/backend/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database: "+err.Error(), err)
		}
	}()

	// set up metrics
	reg := metricsvc.NewRegistry()
	metrics, err := metricsvc.NewPrometheus(reg)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up metrics: %v", err), err)
	}

	// set up repos & services
	principals := sqlxrepos.NewPrincipalRepository(db)
	courses := sqlxrepos.NewCourseRepository(db)
	payments := sqlxrepos.NewPaymentRepository(db)
	enrollments := sqlxrepos.NewEnrollmentRepository(db)

	mailSvc := emailsvc.NewService(conf, logger)
	evaluator := access.NewEvaluator(courses, enrollments, payments, logger, metrics)
	enrollmentSvc := enrollment.NewService(courses, enrollments, payments, logger, metrics)
	fulfillmentSvc := fulfillment.NewService(fulfillment.Deps{
		Tx:             database.NewTransactor(db),
		Courses:        courses,
		Principals:     principals,
		Enrollments:    enrollments,
		Milestones:     sqlxrepos.NewMilestoneRepository(db),
		Payments:       payments,
		Failures:       sqlxrepos.NewFailureRepository(db),
		MailSvc:        mailSvc,
		Logger:         logger,
		Metrics:        metrics,
		OperatorEmails: conf.OperatorEmails,
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	course.InitValidators(validate, translator)

	core.ParseEmailTemplates(appfs.FS, conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus counters.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", metricsvc.Handler(reg))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		Principals:     principals,
		Evaluator:      evaluator,
		EnrollmentSvc:  enrollmentSvc,
		FulfillmentSvc: fulfillmentSvc,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db, "up"); err != nil {
		return nil, err
	}
	return db, nil
}
