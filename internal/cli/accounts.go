package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/unimail/unimail/internal/domain"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage connected mailboxes",
	}
	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsConnectCmd())
	cmd.AddCommand(newAccountsAddIMAPCmd())
	return cmd
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			accounts, err := db.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Println("No accounts connected.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tPROVIDER\tSTATUS\tLAST SYNC")
			for _, a := range accounts {
				lastSync := "never"
				if !a.LastSyncAt.IsZero() {
					lastSync = a.LastSyncAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Email, a.Provider, a.Status, lastSync)
			}
			return w.Flush()
		},
	}
}

// newAccountsConnectCmd drives the OAuth flow for Gmail and Microsoft:
// without --code it prints the consent URL, with --code it exchanges the
// authorization code and stores the account.
func newAccountsConnectCmd() *cobra.Command {
	var (
		providerName string
		email        string
		code         string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a Gmail or Microsoft account via OAuth",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := domain.Provider(providerName)
			if !p.UsesOAuth() {
				return fmt.Errorf("provider %q does not use OAuth; use accounts add-imap", providerName)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()
			registry, pool := buildRegistry(cfg, logger)
			defer pool.CloseAll()

			adapter, err := registry.For(p)
			if err != nil {
				return err
			}

			if code == "" {
				url, err := adapter.AuthURL(uuid.NewString())
				if err != nil {
					return err
				}
				fmt.Println("Open this URL in a browser, authorize, then rerun with --code:")
				fmt.Println(url)
				return nil
			}

			if email == "" {
				return fmt.Errorf("--email is required with --code")
			}

			ctx := cmd.Context()
			pair, err := adapter.ExchangeCode(ctx, code)
			if err != nil {
				return err
			}

			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			acct := &domain.Account{
				ID:             uuid.NewString(),
				Email:          email,
				Provider:       p,
				Status:         domain.StatusActive,
				AccessToken:    pair.AccessToken,
				RefreshToken:   pair.RefreshToken,
				TokenExpiresAt: time.Now().Add(pair.ExpiresIn),
			}
			if err := db.CreateAccount(ctx, acct); err != nil {
				return err
			}
			fmt.Printf("Connected %s account %s (%s)\n", p, email, acct.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&providerName, "provider", "gmail", "provider (gmail|microsoft)")
	cmd.Flags().StringVar(&email, "email", "", "mailbox address")
	cmd.Flags().StringVar(&code, "code", "", "OAuth authorization code")
	return cmd
}

func newAccountsAddIMAPCmd() *cobra.Command {
	var (
		email    string
		host     string
		port     int
		username string
		password string
		noTLS    bool
		yahoo    bool
	)

	cmd := &cobra.Command{
		Use:   "add-imap",
		Short: "Connect an IMAP or Yahoo mailbox with an app password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			p := domain.ProviderIMAP
			if yahoo {
				p = domain.ProviderYahoo
				if host == "" {
					host = cfg.IMAP.YahooHost
					port = cfg.IMAP.YahooPort
				}
			}
			if host == "" {
				return fmt.Errorf("--host is required")
			}
			if port == 0 {
				port = cfg.IMAP.DefaultPort
			}
			if username == "" {
				username = email
			}

			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			acct := &domain.Account{
				ID:           uuid.NewString(),
				Email:        email,
				Provider:     p,
				Status:       domain.StatusActive,
				IMAPHost:     host,
				IMAPPort:     port,
				IMAPUsername: username,
				IMAPPassword: password,
				IMAPUseTLS:   !noTLS,
			}
			if err := db.CreateAccount(cmd.Context(), acct); err != nil {
				return err
			}
			fmt.Printf("Connected %s account %s (%s)\n", p, email, acct.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "mailbox address")
	cmd.Flags().StringVar(&host, "host", "", "IMAP server host")
	cmd.Flags().IntVar(&port, "port", 0, "IMAP server port")
	cmd.Flags().StringVar(&username, "username", "", "IMAP login (defaults to email)")
	cmd.Flags().StringVar(&password, "password", "", "IMAP app password")
	cmd.Flags().BoolVar(&noTLS, "no-tls", false, "connect without TLS")
	cmd.Flags().BoolVar(&yahoo, "yahoo", false, "use Yahoo Mail defaults")
	return cmd
}
