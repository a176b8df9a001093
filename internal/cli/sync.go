package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/syncer"
	"github.com/unimail/unimail/internal/token"
)

func newSyncCmd() *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()

			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			registry, pool := buildRegistry(cfg, logger)
			defer pool.CloseAll()

			tokens := token.NewManager(db, registry, logger)
			orchestrator := syncer.New(db, registry, tokens, logger, syncer.Options{
				FetchTimeout: cfg.Sync.FetchTimeoutDuration(),
				FetchLimit:   cfg.Sync.FetchLimit,
			})

			ctx := cmd.Context()
			folders := []domain.Folder{domain.FolderInbox, domain.FolderSent, domain.FolderArchive}

			if accountID != "" {
				if _, err := orchestrator.TriggerSync(ctx, accountID); err != nil {
					return err
				}
				orchestrator.Stop()
			} else {
				orchestrator.SyncAll(ctx, folders)
			}

			accounts, err := db.ListAccounts(ctx)
			if err != nil {
				return err
			}
			for _, a := range accounts {
				if accountID != "" && a.ID != accountID {
					continue
				}
				if a.LastSyncError != "" {
					fmt.Printf("%s (%s): %s\n", a.Email, a.Provider, a.LastSyncError)
				} else {
					fmt.Printf("%s (%s): synced\n", a.Email, a.Provider)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "sync a single account")
	return cmd
}
