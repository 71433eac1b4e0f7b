package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erkebulan/ustazai/internal/adapters/filewatcher"
	httpserver "github.com/erkebulan/ustazai/internal/infrastructure/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the knowledge base and run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(true, true)
	if err != nil {
		return err
	}
	defer a.close()

	written, err := a.loadKnowledge(ctx)
	if err != nil {
		return err
	}
	a.log.Info("knowledge loaded", zap.Int("documents_written", written))

	if a.cfg.WatchKnowledge {
		watcher, err := filewatcher.New(a.log)
		if err != nil {
			a.log.Warn("file watcher unavailable", zap.Error(err))
		} else {
			reload := func(ctx context.Context) {
				n, err := a.loadKnowledge(ctx)
				if err != nil {
					a.log.Error("knowledge reload failed", zap.Error(err))
					return
				}
				a.log.Info("knowledge reloaded", zap.Int("documents_written", n))
			}
			if err := watcher.Watch(ctx, a.cfg.KnowledgeDir, reload); err != nil {
				a.log.Warn("watching knowledge directory failed", zap.Error(err))
			}
			defer watcher.Stop()
		}
	}

	server := httpserver.New(a.engine, a.ingestor, a.cache, a.loadKnowledge, a.log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(a.cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
