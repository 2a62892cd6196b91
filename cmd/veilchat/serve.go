// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/veilchat/veilchat/internal/api"
	"github.com/veilchat/veilchat/internal/auth"
	authpg "github.com/veilchat/veilchat/internal/auth/postgres"
	"github.com/veilchat/veilchat/internal/config"
	"github.com/veilchat/veilchat/internal/logging"
	"github.com/veilchat/veilchat/internal/observability"
	"github.com/veilchat/veilchat/internal/security"
	securitypg "github.com/veilchat/veilchat/internal/security/postgres"
	"github.com/veilchat/veilchat/internal/store"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API server",
		Long: `Start the HTTP API server along with the metrics/health
endpoint. Configuration comes from the --config file overlaid with any
flags set here.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("database_url", "", "PostgreSQL connection string")
	cmd.Flags().String("listen_addr", config.DefaultListenAddr, "API listen address")
	cmd.Flags().String("metrics_addr", config.DefaultMetricsAddr, "metrics/health HTTP address")
	cmd.Flags().String("log_format", config.DefaultLogFormat, "log format (json or text)")

	return cmd
}

// runServe wires the full service graph and blocks until shutdown.
func runServe(ctx context.Context, cfg *config.Config) error {
	logging.SetDefault("veilchat", version, cfg.LogFormat)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger.Info("database connected")

	hasher := auth.NewArgon2idHasher(auth.Argon2Params{
		Memory:      cfg.Argon2MemoryCost,
		Time:        cfg.Argon2TimeCost,
		Parallelism: cfg.Argon2Parallelism,
	})

	issuer, err := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.AccessTokenTTL(), cfg.Leeway())
	if err != nil {
		return err
	}

	eventRepo := securitypg.NewEventRepository(pool)
	events := security.NewEventLogger(eventRepo, logger, 0)
	defer events.Close()

	coordinator, err := security.NewCoordinator(pool, logger)
	if err != nil {
		return err
	}

	service, err := auth.NewService(
		authpg.NewUserRepository(pool),
		authpg.NewSessionRepository(pool),
		hasher,
		issuer,
		events,
		coordinator,
		auth.Options{
			Lockout: auth.LockoutPolicy{
				LockThreshold:        cfg.LockThreshold,
				LockDuration:         cfg.LockDuration(),
				DestructionThreshold: cfg.DestructionThreshold,
			},
			Logger: logger,
		},
	)
	if err != nil {
		return err
	}

	obsServer := observability.NewServer(cfg.MetricsAddr, func() bool {
		pingCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return pool.Ping(pingCtx) == nil
	})
	obsErrCh, err := obsServer.Start()
	if err != nil {
		return err
	}
	go func() {
		if obsErr := <-obsErrCh; obsErr != nil {
			logger.Error("observability server error", "error", obsErr)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewHandler(service, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr)
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			serveErrCh <- serveErr
		}
	}()

	select {
	case err := <-serveErrCh:
		return oops.Code("SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", "error", err)
	}
	if err := obsServer.Stop(shutdownCtx); err != nil {
		logger.Error("observability server shutdown error", "error", err)
	}

	return nil
}
