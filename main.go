// switchmon — SNMP-based network switch & router monitoring platform.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mzanin/switchmon/internal/alerting"
	"github.com/mzanin/switchmon/internal/collector"
	"github.com/mzanin/switchmon/internal/config"
	"github.com/mzanin/switchmon/internal/server"
	"github.com/mzanin/switchmon/internal/snmp"
	"github.com/mzanin/switchmon/internal/store"
)

const version = "v0.1.0"

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = zerolog.New(os.Stdout)
	if cfg.LogPretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return out.Level(level).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info().Str("version", version).Msg("starting switchmon")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	logger.Info().Str("path", cfg.DBPath).Msg("database ready")

	// Core pipeline: SNMP client → collector, store → evaluator → hub.
	snmpClient := snmp.NewClient(snmp.Config{
		Community: cfg.SNMPCommunity,
		Timeout:   cfg.SNMPTimeout(),
		Retries:   cfg.SNMPRetries,
		Workers:   cfg.SNMPWorkers,
	}, logger)

	hub := server.NewAlertHub(logger)

	coll := collector.New(st, snmpClient, collector.Options{
		Interval:        cfg.CollectorInterval(),
		Workers:         cfg.CollectorWorkers,
		DevicePageLimit: cfg.DevicePageLimit,
	}, logger)

	eval := alerting.New(st, hub, alerting.Options{
		Interval:        cfg.EvaluatorInterval(),
		Suppression:     cfg.SuppressionWindow(),
		DevicePageLimit: cfg.DevicePageLimit,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coll.Start(ctx)
	eval.Start(ctx)

	// HTTP layer.
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), corsMiddleware())

	api := server.NewAPI(st, hub, cfg, logger)
	api.RegisterRoutes(engine)
	server.RegisterStaticFiles(engine)

	addr := fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort)
	srv := &http.Server{Addr: addr, Handler: engine}

	logger.Info().Str("addr", addr).Msg("http server listening")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)

	select {
	case err := <-errCh:
		return err
	case <-quit:
		logger.Info().Msg("shutting down")

		coll.Stop()
		eval.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func main() {
	root := &cobra.Command{
		Use:   "switchmon",
		Short: "switchmon — SNMP network device monitoring & alerting",
		Long: `switchmon is a single-binary platform for monitoring network switches
and routers: it polls devices over SNMP, stores time-series metrics,
evaluates alert rules, and serves results over a REST + WebSocket API.`,
		SilenceUsage: true,
	}

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the switchmon monitoring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print switchmon version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("switchmon %s\n", version)
		},
	}

	root.AddCommand(serverCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
