package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/unimail/unimail/internal/action"
	"github.com/unimail/unimail/internal/ai"
	"github.com/unimail/unimail/internal/api"
	"github.com/unimail/unimail/internal/syncer"
	"github.com/unimail/unimail/internal/token"
)

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync loops and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Server.ListenAddr = listenAddr
			}
			logger := newLogger()

			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			registry, pool := buildRegistry(cfg, logger)
			pool.Start()
			defer pool.CloseAll()

			tokens := token.NewManager(db, registry, logger)
			orchestrator := syncer.New(db, registry, tokens, logger, syncer.Options{
				PrimaryInterval:   cfg.Sync.PrimaryIntervalDuration(),
				SecondaryInterval: cfg.Sync.SecondaryIntervalDuration(),
				FetchTimeout:      cfg.Sync.FetchTimeoutDuration(),
				FetchLimit:        cfg.Sync.FetchLimit,
			})
			router := action.NewRouter(db, registry, tokens, logger)
			summarizer := ai.NewClient(cfg.AI.BaseURL, logger)

			server := api.NewServer(db, orchestrator, router, tokens, summarizer, registry, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			orchestrator.Start(ctx)
			defer orchestrator.Stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", cfg.Server.ListenAddr)
				errCh <- server.Start(cfg.Server.ListenAddr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			if err := server.Shutdown(context.Background()); err != nil {
				logger.Error("shutdown failed", "error", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
	return cmd
}
