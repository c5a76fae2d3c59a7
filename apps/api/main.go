package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	dig_container "github.com/trezcool/learninghub/apps/api/di/dig"
	echoapi "github.com/trezcool/learninghub/apps/api/echo"
	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/user"
	"github.com/trezcool/learninghub/services/ratelimit"
)

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sqlx.DB,
		redisClient *redis.Client,
		validate *validator.Validate,
		translator ut.Translator,
		usrSvc *user.Service,
		limiter ratelimit.Limiter,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.InitValidators(validate, translator)
		core.ParseEmailTemplates(apiLogger)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := usrSvc.EnsureSingleAdmin(ctx, conf.AdminEmail); err != nil {
			apiLogger.Error(fmt.Sprintf("ensuring single admin: %v", err), err)
		}

		if ml, ok := limiter.(*ratelimit.MemoryLimiter); ok {
			ml.StartCleanup(ctx, ratelimitCleanupInterval)
		}

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		if redisClient != nil {
			defer func() { _ = redisClient.Close() }()
		}
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		expvar.NewString("authProvider").Set(conf.Auth.Provider)

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		go func() {
			apiLogger.Info(fmt.Sprintf("API listening on %s", conf.Server.Address))
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancelShutdown()

			// asking listener to shut down and shed load
			if err := server.Shutdown(shutdownCtx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

const ratelimitCleanupInterval = 5 * time.Minute

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
