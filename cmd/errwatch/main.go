// Command errwatch runs the error aggregation and alerting service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	api "github.com/opsflare/errwatch/internal/api/v2"
	"github.com/opsflare/errwatch/internal/conf"
	"github.com/opsflare/errwatch/internal/logger"
	"github.com/opsflare/errwatch/internal/monitor"
	"github.com/opsflare/errwatch/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "errwatch",
		Short:        "Error aggregation, trend analysis, and alerting service",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	settings, err := conf.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	log := logger.NewSlogLogger(os.Stdout, logger.ParseLevel(settings.LogLevel), nil)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := telemetry.New(registry)

	system := monitor.New(settings, log, metrics)
	system.Start()
	defer system.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	api.NewController(e.Group("/api/v2"), system, log)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(settings.API.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("errwatch started", logger.String("listen_addr", settings.API.ListenAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server failed", logger.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", logger.Error(err))
		return err
	}
	return nil
}
