package token

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/provider"
)

type fakeStore struct {
	accounts map[string]*domain.Account

	updatedID      string
	updatedAccess  string
	updatedRefresh string
	updatedExpiry  time.Time

	erroredID  string
	erroredMsg string
}

func (f *fakeStore) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	acct, ok := f.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrAccountNotFound)
	}
	cp := *acct
	return &cp, nil
}

func (f *fakeStore) UpdateAccountTokens(_ context.Context, id, access, refresh string, expiresAt time.Time) error {
	f.updatedID = id
	f.updatedAccess = access
	f.updatedRefresh = refresh
	f.updatedExpiry = expiresAt
	return nil
}

func (f *fakeStore) MarkAccountError(_ context.Context, id, message string) error {
	f.erroredID = id
	f.erroredMsg = message
	return nil
}

// fakeAdapter stubs provider.Adapter; only RefreshToken matters here.
type fakeAdapter struct {
	pair      provider.TokenPair
	err       error
	refreshed int
}

func (f *fakeAdapter) AuthURL(string) (string, error) { return "", domain.ErrProviderUnsupported }

func (f *fakeAdapter) ExchangeCode(context.Context, string) (provider.TokenPair, error) {
	return provider.TokenPair{}, domain.ErrProviderUnsupported
}

func (f *fakeAdapter) RefreshToken(context.Context, string) (provider.TokenPair, error) {
	f.refreshed++
	return f.pair, f.err
}

func (f *fakeAdapter) FetchMessages(context.Context, provider.Credential, domain.Folder, int) ([]domain.Email, error) {
	return nil, nil
}

func (f *fakeAdapter) SendMessage(context.Context, provider.Credential, *domain.Envelope) (string, error) {
	return "", nil
}

func (f *fakeAdapter) SetReadStatus(context.Context, provider.Credential, string, bool) error {
	return nil
}

func (f *fakeAdapter) Move(context.Context, provider.Credential, string, domain.Folder) error {
	return nil
}

func (f *fakeAdapter) Delete(context.Context, provider.Credential, string, bool) error {
	return nil
}

func (f *fakeAdapter) SetStarred(context.Context, provider.Credential, string, bool) error {
	return nil
}

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func newTestManager(store *fakeStore, adapter *fakeAdapter) *Manager {
	registry := provider.NewRegistry()
	registry.Register(domain.ProviderGmail, adapter)
	m := NewManager(store, registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.now = func() time.Time { return testNow }
	return m
}

func gmailAccount(expiry time.Time) *domain.Account {
	return &domain.Account{
		ID:             "acc-1",
		Email:          "alice@gmail.com",
		Provider:       domain.ProviderGmail,
		Status:         domain.StatusActive,
		AccessToken:    "old-access",
		RefreshToken:   "old-refresh",
		TokenExpiresAt: expiry,
	}
}

func TestValidAccessToken_FreshTokenNotRefreshed(t *testing.T) {
	store := &fakeStore{accounts: map[string]*domain.Account{
		"acc-1": gmailAccount(testNow.Add(10 * time.Minute)),
	}}
	adapter := &fakeAdapter{}
	m := newTestManager(store, adapter)

	got, refreshed, err := m.ValidAccessToken(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("ValidAccessToken() error: %v", err)
	}
	if got != "old-access" {
		t.Errorf("token = %q, want %q", got, "old-access")
	}
	if refreshed {
		t.Error("refreshed = true, want false")
	}
	if adapter.refreshed != 0 {
		t.Errorf("adapter refresh calls = %d, want 0", adapter.refreshed)
	}
}

func TestValidAccessToken_RefreshesInsideMargin(t *testing.T) {
	store := &fakeStore{accounts: map[string]*domain.Account{
		"acc-1": gmailAccount(testNow.Add(4 * time.Minute)),
	}}
	adapter := &fakeAdapter{pair: provider.TokenPair{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		ExpiresIn:    time.Hour,
	}}
	m := newTestManager(store, adapter)

	got, refreshed, err := m.ValidAccessToken(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("ValidAccessToken() error: %v", err)
	}
	if got != "new-access" {
		t.Errorf("token = %q, want %q", got, "new-access")
	}
	if !refreshed {
		t.Error("refreshed = false, want true")
	}
	if store.updatedAccess != "new-access" || store.updatedRefresh != "new-refresh" {
		t.Errorf("persisted tokens = (%q, %q), want (new-access, new-refresh)",
			store.updatedAccess, store.updatedRefresh)
	}
	wantExpiry := testNow.Add(time.Hour)
	if !store.updatedExpiry.Equal(wantExpiry) {
		t.Errorf("persisted expiry = %v, want %v", store.updatedExpiry, wantExpiry)
	}
}

func TestValidAccessToken_RetainsRefreshTokenWhenNotRotated(t *testing.T) {
	store := &fakeStore{accounts: map[string]*domain.Account{
		"acc-1": gmailAccount(time.Time{}), // unset expiry forces refresh
	}}
	adapter := &fakeAdapter{pair: provider.TokenPair{
		AccessToken: "new-access",
		ExpiresIn:   time.Hour,
	}}
	m := newTestManager(store, adapter)

	if _, _, err := m.ValidAccessToken(context.Background(), "acc-1"); err != nil {
		t.Fatalf("ValidAccessToken() error: %v", err)
	}
	if store.updatedRefresh != "old-refresh" {
		t.Errorf("persisted refresh token = %q, want retained %q", store.updatedRefresh, "old-refresh")
	}
}

func TestValidAccessToken_RefreshFailureDemotesAccount(t *testing.T) {
	store := &fakeStore{accounts: map[string]*domain.Account{
		"acc-1": gmailAccount(testNow.Add(time.Minute)),
	}}
	adapter := &fakeAdapter{err: fmt.Errorf("%w: gmail: invalid_grant", domain.ErrTokenRefresh)}
	m := newTestManager(store, adapter)

	_, _, err := m.ValidAccessToken(context.Background(), "acc-1")
	if !errors.Is(err, domain.ErrTokenRefresh) {
		t.Fatalf("ValidAccessToken() error = %v, want ErrTokenRefresh", err)
	}
	if store.erroredID != "acc-1" {
		t.Errorf("errored account = %q, want acc-1", store.erroredID)
	}
	if store.erroredMsg != reconnectMessage {
		t.Errorf("errored message = %q, want %q", store.erroredMsg, reconnectMessage)
	}
	if store.updatedID != "" {
		t.Error("tokens were persisted after a failed refresh")
	}
}

func TestValidAccessToken_ShortCircuitsAfterDemotion(t *testing.T) {
	demoted := gmailAccount(testNow.Add(time.Minute))
	demoted.Status = domain.StatusError
	demoted.LastSyncError = reconnectMessage

	store := &fakeStore{accounts: map[string]*domain.Account{"acc-1": demoted}}
	adapter := &fakeAdapter{err: fmt.Errorf("%w: gmail: invalid_grant", domain.ErrTokenRefresh)}
	m := newTestManager(store, adapter)

	for i := 0; i < 3; i++ {
		_, _, err := m.ValidAccessToken(context.Background(), "acc-1")
		if !errors.Is(err, domain.ErrTokenRefresh) {
			t.Fatalf("ValidAccessToken() call %d error = %v, want ErrTokenRefresh", i+1, err)
		}
	}
	if adapter.refreshed != 0 {
		t.Errorf("provider refresh attempts on an already-errored account = %d, want 0", adapter.refreshed)
	}
}

func TestValidAccessToken_Errors(t *testing.T) {
	noToken := gmailAccount(time.Time{})
	noToken.AccessToken = ""
	noRefresh := gmailAccount(time.Time{})
	noRefresh.RefreshToken = ""

	store := &fakeStore{accounts: map[string]*domain.Account{
		"no-token":   noToken,
		"no-refresh": noRefresh,
	}}
	m := newTestManager(store, &fakeAdapter{})

	tests := []struct {
		name      string
		accountID string
		wantErr   error
	}{
		{"missing account", "nope", domain.ErrAccountNotFound},
		{"no access token", "no-token", domain.ErrNoToken},
		{"no refresh token", "no-refresh", domain.ErrNoRefreshToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := m.ValidAccessToken(context.Background(), tt.accountID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidAccessToken(%s) error = %v, want %v", tt.accountID, err, tt.wantErr)
			}
		})
	}
}

func TestNeedsReconnection(t *testing.T) {
	healthy := gmailAccount(testNow.Add(time.Hour))
	errored := gmailAccount(testNow.Add(time.Hour))
	errored.Status = domain.StatusError
	noRefresh := gmailAccount(testNow.Add(time.Hour))
	noRefresh.RefreshToken = ""
	imap := &domain.Account{
		ID:           "imap-1",
		Provider:     domain.ProviderIMAP,
		Status:       domain.StatusActive,
		IMAPHost:     "imap.example.com",
		IMAPPort:     993,
		IMAPUsername: "carol",
		IMAPPassword: "secret",
	}

	store := &fakeStore{accounts: map[string]*domain.Account{
		"healthy":    healthy,
		"errored":    errored,
		"no-refresh": noRefresh,
		"imap-1":     imap,
	}}
	m := newTestManager(store, &fakeAdapter{})

	tests := []struct {
		accountID string
		want      bool
	}{
		{"healthy", false},
		{"errored", true},
		{"no-refresh", true},
		{"missing", true},
		{"imap-1", false},
	}
	for _, tt := range tests {
		if got := m.NeedsReconnection(context.Background(), tt.accountID); got != tt.want {
			t.Errorf("NeedsReconnection(%s) = %v, want %v", tt.accountID, got, tt.want)
		}
	}
}
