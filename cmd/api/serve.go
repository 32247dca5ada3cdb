package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"epicollect/api/internal/app"
	"epicollect/api/internal/cache"
	"epicollect/api/internal/identity"
	"epicollect/api/internal/search"
	"epicollect/api/internal/store"
	"epicollect/api/internal/upload"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Apply migrations and serve the upload API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	e, err := setup(ctx, opts, true)
	if err != nil {
		return err
	}
	defer e.close()
	cfg, log := e.cfg, e.log

	if err := store.ApplyMigrations(ctx, e.store.DB()); err != nil {
		return err
	}

	var projectCache cache.ProjectCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisProjects, err := cache.NewRedisProjects(cfg.RedisURL, cfg.StructureCacheTTL)
		if err != nil {
			log.Warn(ctx, "structure cache disabled", "error", err)
		} else {
			defer redisProjects.Close()
			projectCache = redisProjects
			log.Info(ctx, "using redis structure cache")
		}
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	}

	service := app.New(app.Deps{
		Projects: cache.NewLoader(e.store, projectCache, log),
		Engine:   upload.NewEngine(upload.Postgres(e.store), log),
		Actors:   identity.NewResolver(e.store, log),
		Store:    e.store,
		Search:   search.NewService(meiliClient, e.store, log),
		Log:      log,
	})

	httpServer := app.NewHTTPServer(service, []byte(cfg.JWTSecret), cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "epicollect api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "shutdown error", "error", err)
	}
	return nil
}
