package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"inkwell/api/internal/ai"
	"inkwell/api/internal/app"
	"inkwell/api/internal/archive"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/email"
	"inkwell/api/internal/export"
	"inkwell/api/internal/jobs"
	"inkwell/api/internal/objectstore"
	"inkwell/api/internal/search"
	"inkwell/api/internal/security"
	"inkwell/api/internal/session"
	"inkwell/api/internal/workspace"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	log := logrus.StandardLogger()

	dataStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer dataStore.Close()

	var sessions session.Store
	var limiter security.Limiter
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Info("Using Redis for sessions and rate limits")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		sessions = redisStore
		limiter = security.NewRedisLimiter(redisStore.Client(), cfg.RateLimitWindow, cfg.RateLimitMax)
	} else {
		log.Info("Using in-memory sessions and rate limits")
		sessions = session.NewMemoryStore()
		limiter = security.NewMemoryLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	}

	accounts := authpw.NewService(dataStore)
	engine := security.NewEngine(sessions, limiter, accounts, security.Config{
		SessionTimeout: cfg.SessionTimeout,
		PathMatch:      security.PathMatch(cfg.AuthPathMatch),
	}, security.WithEventSink(dataStore), security.WithLogger(log))
	defer engine.Close()

	var engineIndex search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		engineIndex = meiliClient
	}
	searchService := search.NewService(engineIndex, search.NewStoreSearcher(dataStore))
	defer searchService.Wait()

	deps := workspace.Deps{
		Store:            dataStore,
		Indexer:          searchService,
		AutosaveInterval: cfg.AutosaveInterval,
		Logger:           log,
	}
	var archiveService *archive.Service
	if strings.TrimSpace(cfg.ArchiveDir) != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			return err
		}
		archiveService = archive.New(cfg.ArchiveDir)
		deps.Archiver = archiveService
	}
	workspaces := workspace.NewManager(deps)

	var objects *objectstore.Client
	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		objects, err = objectstore.New(objectstore.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return err
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			log.WithError(err).Warn("object storage unavailable; uploads will fail")
		}
	}

	runner, err := jobs.NewRunner(time.Minute,
		jobs.NewFuncJob("security-cleanup", cfg.CleanupSchedule, func(ctx context.Context) error {
			sessionsPurged, counters, err := engine.Cleanup(ctx)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"sessions": sessionsPurged, "counters": counters}).Info("security cleanup")
			return nil
		}),
		jobs.NewFuncJob("workspace-eviction", "@every 1m", func(ctx context.Context) error {
			if evicted := workspaces.EvictIdle(ctx, cfg.WorkspaceIdle); evicted > 0 {
				log.WithField("workspaces", evicted).Info("evicted idle workspaces")
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}

	service := app.New(app.Deps{
		Config:     cfg,
		Store:      dataStore,
		Security:   engine,
		Accounts:   accounts,
		Workspaces: workspaces,
		Search:     searchService,
		Export:     export.NewService(dataStore, export.WithDOCXReference(cfg.DOCXReferenceDoc)),
		AI: ai.NewService(ai.Config{
			BaseURL: cfg.AIBaseURL,
			APIKey:  cfg.AIAPIKey,
			Model:   cfg.AIModel,
		}, dataStore),
		Email: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
		Objects: objects,
		Archive: archiveService,
		Logger:  log,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runner.Start()
	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("Inkwell API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-serverErr:
		runner.Stop()
		workspaces.CloseAll(context.Background())
		return err
	}

	runner.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
	// Flush unsaved edits of every open document before the store closes.
	workspaces.CloseAll(shutdownCtx)
	return nil
}
