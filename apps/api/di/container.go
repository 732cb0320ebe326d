// Package di wires the API dependencies in a dig.Container.
package di

import (
	"context"
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/storage/database"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
)

const dbName = "academia"

type ServerParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	UserSvc    user.Service
	Validate   *validator.Validate
	Translator ut.Translator
	DB         *sqlx.DB
	Registry   *prometheus.Registry
}

func newLogger(conf *core.Config) *logsvc.RollbarLogger {
	return logsvc.New(conf, "API : ", log.LstdFlags)
}

func asCoreLogger(logger *logsvc.RollbarLogger) core.Logger { return logger }

// newDB connects to the database, applying pending migrations when configured to.
// The process exits when the database cannot be reached.
func newDB(conf *core.Config, logger core.Logger) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		db, err := database.Open(context.Background(), conf)
		if err != nil {
			return nil, err
		}
		if conf.Database.AutoMigrate {
			if err = database.Migrate(db.DB); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newRegistry(db *sqlx.DB) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db.DB, dbName),
	)
	return reg
}

func newUserRepository(db *sqlx.DB) user.Repository {
	return sqlxrepos.NewUserRepository(db)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newServer(p ServerParams) (*echoapi.Server, error) {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		UserSvc:    p.UserSvc,
		Validate:   p.Validate,
		Translator: p.Translator,
		DB:         p.DB,
		Registerer: p.Registry,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(asCoreLogger))
	must(c.Provide(newDB))
	must(c.Provide(newRegistry))
	must(c.Provide(newUserRepository))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(user.NewServiceOptions))
	must(c.Provide(user.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
