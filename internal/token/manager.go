package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/provider"
)

// expiryMargin is how close to expiry a token may get before it is
// refreshed. Refreshing early avoids handing out a token that dies
// mid-request.
const expiryMargin = 5 * time.Minute

// reconnectMessage is the stable user-facing error recorded on the account
// when a refresh fails.
const reconnectMessage = "token refresh failed; reconnect the account"

// AccountStore is the slice of the persistence layer the manager needs.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	UpdateAccountTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error
	MarkAccountError(ctx context.Context, id, message string) error
}

// Manager hands out access tokens that are guaranteed valid for at least
// the expiry margin, refreshing through the account's provider adapter
// when needed.
type Manager struct {
	store    AccountStore
	registry *provider.Registry
	logger   *slog.Logger
	now      func() time.Time
}

func NewManager(store AccountStore, registry *provider.Registry, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// ValidAccessToken returns an access token usable for at least the expiry
// margin, refreshing and persisting first when the stored one is stale.
// The second return reports whether a refresh happened.
//
// A failed refresh demotes the account to error state before the error is
// returned, so later calls short-circuit instead of retrying a doomed
// refresh.
func (m *Manager) ValidAccessToken(ctx context.Context, accountID string) (string, bool, error) {
	acct, err := m.store.GetAccount(ctx, accountID)
	if err != nil {
		return "", false, err
	}
	if !acct.Provider.UsesOAuth() {
		return "", false, fmt.Errorf("account %s: provider %q does not use oauth tokens", accountID, acct.Provider)
	}
	// An account demoted for a failed refresh stays failed until its
	// tokens change; re-asking the provider every pass is pointless.
	if acct.Status == domain.StatusError && acct.LastSyncError == reconnectMessage {
		return "", false, fmt.Errorf("account %s: %w", accountID, domain.ErrTokenRefresh)
	}
	if acct.AccessToken == "" {
		return "", false, fmt.Errorf("account %s: %w", accountID, domain.ErrNoToken)
	}

	if !m.needsRefresh(acct) {
		return acct.AccessToken, false, nil
	}

	if acct.RefreshToken == "" {
		return "", false, fmt.Errorf("account %s: %w", accountID, domain.ErrNoRefreshToken)
	}

	adapter, err := m.registry.For(acct.Provider)
	if err != nil {
		return "", false, err
	}

	pair, err := adapter.RefreshToken(ctx, acct.RefreshToken)
	if err != nil {
		m.logger.Error("token refresh failed",
			"account_id", accountID, "provider", acct.Provider, "error", err)
		if markErr := m.store.MarkAccountError(ctx, accountID, reconnectMessage); markErr != nil {
			m.logger.Error("failed to mark account errored", "account_id", accountID, "error", markErr)
		}
		return "", false, fmt.Errorf("account %s: %w", accountID, err)
	}

	// Providers may keep the old refresh token; retain it then.
	refreshToken := pair.RefreshToken
	if refreshToken == "" {
		refreshToken = acct.RefreshToken
	}
	expiresAt := m.now().Add(pair.ExpiresIn)

	if err := m.store.UpdateAccountTokens(ctx, accountID, pair.AccessToken, refreshToken, expiresAt); err != nil {
		return "", false, fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	m.logger.Info("refreshed access token",
		"account_id", accountID, "provider", acct.Provider, "expires_at", expiresAt)
	return pair.AccessToken, true, nil
}

// needsRefresh reports whether the stored token is unset or expires within
// the margin.
func (m *Manager) needsRefresh(acct *domain.Account) bool {
	if acct.TokenExpiresAt.IsZero() {
		return true
	}
	return acct.TokenExpiresAt.Before(m.now().Add(expiryMargin))
}

// NeedsReconnection reports whether the account cannot be used without the
// user re-authorizing it: missing, errored, or missing token material.
// IMAP-style accounts need reconnection only when errored or incomplete.
func (m *Manager) NeedsReconnection(ctx context.Context, accountID string) bool {
	acct, err := m.store.GetAccount(ctx, accountID)
	if err != nil {
		return true
	}
	if acct.Status == domain.StatusError {
		return true
	}
	if acct.Provider.UsesOAuth() {
		return acct.AccessToken == "" || acct.RefreshToken == ""
	}
	return !acct.HasCredentials()
}
