package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/unimail/unimail/internal/config"
	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/provider"
	"github.com/unimail/unimail/internal/provider/gmail"
	"github.com/unimail/unimail/internal/provider/imapmail"
	"github.com/unimail/unimail/internal/provider/microsoft"
	"github.com/unimail/unimail/internal/store/sqlite"
)

var (
	// version is set via ldflags at build time.
	version = "dev"

	cfgFile  string
	logLevel string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "unimail",
		Short:         "Multi-provider mail sync server",
		Long:          "Synchronizes Gmail, Microsoft and IMAP mailboxes into one local store and serves a unified HTTP API over them.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default "+filepath.Join(config.ConfigDir(), "config.toml")+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newAccountsCmd())
	root.AddCommand(newSyncCmd())
	return root
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = filepath.Join(config.ConfigDir(), "config.toml")
	}
	return config.Load(path)
}

func newLogger() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      parseLevel(logLevel),
		TimeFormat: time.DateTime,
	}))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openStore(cfg *config.Config) (*sqlite.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Server.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return sqlite.New(cfg.Server.DBPath)
}

// buildRegistry wires one adapter per provider. The IMAP adapter is
// shared by the generic imap and yahoo providers; the returned pool must
// be started and closed by the caller.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*provider.Registry, *imapmail.Pool) {
	registry := provider.NewRegistry()

	registry.Register(domain.ProviderGmail, gmail.New(gmail.Config{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		RedirectURL:  cfg.Gmail.RedirectURL,
	}))
	registry.Register(domain.ProviderMicrosoft, microsoft.New(microsoft.Config{
		ClientID:     cfg.Microsoft.ClientID,
		ClientSecret: cfg.Microsoft.ClientSecret,
		RedirectURL:  cfg.Microsoft.RedirectURL,
		Tenant:       cfg.Microsoft.Tenant,
	}))

	pool := imapmail.NewPool(imapmail.Dial, logger)
	pool.SetTimings(cfg.Pool.IdleTTLDuration(), cfg.Pool.SweepPeriodDuration())
	imapAdapter := imapmail.New(pool, logger)
	registry.Register(domain.ProviderIMAP, imapAdapter)
	registry.Register(domain.ProviderYahoo, imapAdapter)

	return registry, pool
}
