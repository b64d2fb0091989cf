// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"filippo.io/age"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/voltcord/voltcord/pkg/config"
	"github.com/voltcord/voltcord/pkg/logging"
	"github.com/voltcord/voltcord/services/api"
	"github.com/voltcord/voltcord/services/api/handlers"
	"github.com/voltcord/voltcord/services/core/audit"
	"github.com/voltcord/voltcord/services/core/credential"
	"github.com/voltcord/voltcord/services/core/device"
	"github.com/voltcord/voltcord/services/core/dispatch"
	"github.com/voltcord/voltcord/services/core/observability"
	"github.com/voltcord/voltcord/services/core/pipeline"
	"github.com/voltcord/voltcord/services/core/scheduler"
	"github.com/voltcord/voltcord/services/core/store"
	"github.com/voltcord/voltcord/services/core/trigger"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		LogDir:  cfg.Log.Dir,
		Service: "voltcord",
		JSON:    cfg.Log.JSON,
	})
	defer logger.Close()

	db, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	st := store.New(db)

	identity, err := loadOrGenerateIdentity(cfg, logger)
	if err != nil {
		return err
	}
	creds, err := credential.New(st, identity)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	client, err := device.NewClient(device.Config{
		BaseURL:        cfg.Device.BaseURL,
		RequestTimeout: cfg.Device.RequestTimeout,
		RatePerSecond:  cfg.Device.RatePerSecond,
		Burst:          cfg.Device.Burst,
		MaxInFlight:    cfg.Device.MaxInFlight,
		MaxQueued:      cfg.Device.MaxQueued,
		MaxRetries:     cfg.Device.MaxRetries,
	}, metrics, logger)
	if err != nil {
		return err
	}

	pl := pipeline.New(st, metrics, logger)
	sink := audit.NewSink(db, logger)
	dispatcher := dispatch.New(st, pl, creds, client, sink, metrics, logger)

	sched, err := scheduler.New(scheduler.Config{
		TickInterval:       cfg.Scheduler.TickInterval,
		MaxBatch:           cfg.Scheduler.MaxBatch,
		DispatchTimeout:    cfg.Scheduler.DispatchTimeout,
		AuditRetention:     cfg.Audit.Retention,
		AuditPruneInterval: cfg.Audit.PruneInterval,
	}, st, dispatcher, sink, metrics, logger)
	if err != nil {
		return err
	}

	matcher := trigger.NewMatcher(st, dispatcher, metrics, logger)

	gin.SetMode(gin.ReleaseMode)
	router, err := api.NewRouter(handlers.Deps{
		Store:      st,
		Creds:      creds,
		Client:     client,
		Dispatcher: dispatcher,
		Matcher:    matcher,
		Sink:       sink,
		Logger:     logger,
	}, cfg.Server.AuthToken, registry)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router}

	sched.Start()
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(cfg config.Config, logger *logging.Logger) (*store.DB, error) {
	if cfg.Store.Dir == "" {
		logger.Warn("no store directory configured, using in-memory store; data will not survive restarts")
		scfg := store.InMemoryConfig()
		scfg.Logger = logger.Slog()
		return store.OpenDB(scfg)
	}
	scfg := store.DefaultConfig(cfg.Store.Dir)
	scfg.Logger = logger.Slog()
	scfg.GCInterval = cfg.Store.GCInterval
	return store.OpenDB(scfg)
}

func loadOrGenerateIdentity(cfg config.Config, logger *logging.Logger) (*age.X25519Identity, error) {
	if cfg.Credential.IdentityPath != "" {
		return credential.LoadIdentity(cfg.Credential.IdentityPath)
	}
	logger.Warn("no identity file configured, generating an ephemeral one; " +
		"stored tokens will be unreadable after restart")
	return credential.GenerateIdentity()
}
