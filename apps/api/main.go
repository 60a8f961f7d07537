package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caffeinepub/diploma-smart-study-hub/apps/api/di/dig"
	echoapi "github.com/caffeinepub/diploma-smart-study-hub/apps/api/echo"
	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
	"github.com/caffeinepub/diploma-smart-study-hub/services/metrics"
)

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		closers dig_container.ClosersParam,
		validate *validator.Validate,
		translator ut.Translator,
		paymentSvc payment.ServiceInterface,
		recorder *metrics.Recorder,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator)

		core.ParseEmailTemplates(conf, apiLogger)

		user.LoadCommonPasswords(conf, apiLogger)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := closers.DB(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer func() {
			if err := closers.Redis(); err != nil {
				apiLogger.Error(fmt.Sprintf("closing redis: %v", err), err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.
		// /metrics - prometheus metrics.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		http.Handle("/metrics", promhttp.Handler())

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start Reconciler

		ctx, stopReconciler := context.WithCancel(context.Background())
		defer stopReconciler()
		go runReconciler(ctx, conf.Payments.ReconcileInterval, paymentSvc, recorder, apiLogger)

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
			stopReconciler()

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
