package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/p-blackswan/factory-agent/internal/action"
	"github.com/p-blackswan/factory-agent/internal/config"
	"github.com/p-blackswan/factory-agent/internal/env"
	"github.com/p-blackswan/factory-agent/internal/factory"
	"github.com/p-blackswan/factory-agent/internal/lifecycle"
	"github.com/p-blackswan/factory-agent/internal/metrics"
	"github.com/p-blackswan/factory-agent/internal/notify"
	"github.com/p-blackswan/factory-agent/internal/opener"
	"github.com/p-blackswan/factory-agent/internal/server"
	"github.com/p-blackswan/factory-agent/internal/session"
	"github.com/p-blackswan/factory-agent/internal/vcs"
)

var runFlags struct {
	location     string
	factoryID    string
	noServer     bool
	exitWhenDone bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a factory bootstrap session",
	Long: "Loads the session's factory, imports its projects and fires the lifecycle\n" +
		"phases. The session ends on SIGINT/SIGTERM, or after the imports settle\n" +
		"with --exit-when-done.",
	RunE: runSession,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.location, "location", "", "Session URL carrying the factory-id query parameter (default $FACTORY_LOCATION)")
	f.StringVar(&runFlags.factoryID, "factory-id", "", "Factory ID; overrides --location")
	f.BoolVar(&runFlags.noServer, "no-server", false, "Do not start the status server")
	f.BoolVar(&runFlags.exitWhenDone, "exit-when-done", false, "End the session once project imports have settled")
}

func runSession(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	location := resolveLocation(cfg, runFlags.location, runFlags.factoryID)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	ctx, sessionID := session.New(ctx)
	logger = logger.With().Str("session_id", sessionID).Logger()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger.Info().
		Str("environment", cfg.Environment).
		Str("location", location).
		Str("status_addr", cfg.StatusAddr).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting factory agent")

	m := metrics.New()
	vars := env.NewSnapshot(env.NewOSProvider(cfg.EnvFileList()...))
	cache := newCache(cfg, location, vars, m, logger)

	notifier := newNotifier(cfg, logger)
	op, err := opener.New(cfg.OpenCommand, logger)
	if err != nil {
		return fmt.Errorf("configuring opener: %w", err)
	}

	orch := lifecycle.New(lifecycle.Deps{
		Definitions: cache,
		Env:         vars,
		VCS:         vcs.NewGit(cfg.GitBin, logger),
		Notifier:    notifier,
		Dispatcher:  action.NewDispatcher(op, notifier, m, logger),
		Metrics:     m,
		Logger:      logger,
	})

	var srv *server.Server
	if cfg.StatusEnabled() && !runFlags.noServer {
		srv = server.New(server.Config{ListenAddr: cfg.StatusAddr, SessionID: sessionID}, orch, cache, m, logger)
		ln, err := srv.Listen()
		if err != nil {
			return fmt.Errorf("starting status server: %w", err)
		}
		go func() {
			if err := srv.Serve(ln); err != nil {
				logger.Error().Err(err).Msg("status server error")
			}
		}()
	}

	// The host is ready once its surfaces are up.
	go orch.OnReady(ctx)

	done := make(chan *lifecycle.Report, 1)
	go func() { done <- orch.Start(ctx) }()

	var finished <-chan *lifecycle.Report
	if runFlags.exitWhenDone {
		finished = done
	}

	select {
	case report := <-finished:
		logger.Info().
			Str("state", string(report.State)).
			Int("failed", report.Failed()).
			Msg("session settled, ending")
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	}

	closeCtx, closeCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.CloseTimeout)
	orch.OnClosing(closeCtx)
	closeCancel()
	cancel()

	if srv != nil {
		if err := srv.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("status server shutdown error")
		}
	}

	logger.Info().Msg("factory agent stopped")
	return nil
}

func newCache(cfg *config.Config, location string, vars env.Provider, m *metrics.Metrics, logger zerolog.Logger) *factory.Cache {
	fetcherFor := func(baseURL string) factory.Fetcher {
		return factory.NewFetcher(baseURL, cfg.HTTPTimeout, logger)
	}
	return factory.NewCache(location, vars, fetcherFor, m, logger)
}

func newNotifier(cfg *config.Config, logger zerolog.Logger) notify.Notifier {
	var n notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.SlackEnabled() {
		slack := notify.NewSlackNotifierFromToken(cfg.SlackBotToken, cfg.SlackChannel, logger)
		n = notify.Multi{n, notify.Bounded(slack)}
	}
	return n
}
