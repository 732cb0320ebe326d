package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on the default mux
	"os"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/dig"

	"github.com/trezcool/academia/apps/api/di"
	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/fs"
	logsvc "github.com/trezcool/academia/services/logger"
)

const rollbarFlushTimeout = 5 * time.Second

func main() {
	c := di.New()

	err := c.Invoke(func(
		conf *core.Config,
		logger *logsvc.RollbarLogger,
		db *sqlx.DB,
		registry *prometheus.Registry,
		validate *validator.Validate,
		translator ut.Translator,
		mailSvc core.EmailService,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
		defer logger.Flush(rollbarFlushTimeout)

		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator, conf.Users.PasswordPolicy)

		core.ParseEmailTemplates(appfs.FS, logger, false)

		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close database", err)
			}
		}()
		defer logger.Info("Application stopped")
		defer mailSvc.Wait() // let queued emails go out before closing

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.
		// /metrics - Prometheus metrics of the API, the DB pool & the Go runtime.

		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Address))
		go server.Start()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			logger.Error(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	})
	if err != nil {
		log.Println(dig.RootCause(err))
		os.Exit(1)
	}
}
