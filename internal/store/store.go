package store

import (
	"context"
	"time"

	"github.com/unimail/unimail/internal/domain"
)

// ListOptions configures email listing queries. An empty AccountID means
// the unified view across all accounts.
type ListOptions struct {
	AccountID string
	Folder    domain.Folder
	Limit     int
	Offset    int
}

// Store defines the persistence interface for the sync core. The
// implementation must guarantee a unique constraint on
// (account_id, provider_message_id) so upserts never duplicate.
type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, acct *domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)

	// UpdateAccountTokens persists a refreshed credential set in one
	// logical update: access token, refresh token and expiry always
	// travel together, and a successful refresh clears the sync error.
	UpdateAccountTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error

	// MarkAccountError flips the account to error state, records the
	// message and increments the consecutive error counter.
	MarkAccountError(ctx context.Context, id, message string) error

	// MarkAccountSynced records a successful sync pass and resets the
	// error state.
	MarkAccountSynced(ctx context.Context, id string, at time.Time) error

	// Emails
	UpsertEmail(ctx context.Context, email *domain.Email) error
	GetEmail(ctx context.Context, id string) (*domain.Email, error)
	ListEmails(ctx context.Context, opts ListOptions) ([]domain.Email, error)
	CountEmails(ctx context.Context, accountID string, folder domain.Folder) (int, error)
	DeleteEmail(ctx context.Context, id string) error
	SetEmailRead(ctx context.Context, id string, read bool) error
	SetEmailStarred(ctx context.Context, id string, starred bool) error
	SetEmailFolder(ctx context.Context, id string, folder domain.Folder) error
	SetEmailSummary(ctx context.Context, id, summary string) error

	// Search
	SearchEmails(ctx context.Context, query, accountID string) ([]domain.Email, error)

	// Lifecycle
	Close() error
}
