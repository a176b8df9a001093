package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/provider"
)

type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	emails   map[string]*domain.Email

	readSet    map[string]bool
	starredSet map[string]bool
	folderSet  map[string]domain.Folder
	deleted    map[string]bool
}

func newFakeStore(acct *domain.Account, emails ...*domain.Email) *fakeStore {
	s := &fakeStore{
		accounts:   map[string]*domain.Account{acct.ID: acct},
		emails:     make(map[string]*domain.Email),
		readSet:    make(map[string]bool),
		starredSet: make(map[string]bool),
		folderSet:  make(map[string]domain.Folder),
		deleted:    make(map[string]bool),
	}
	for _, e := range emails {
		s.emails[e.ID] = e
	}
	return s
}

func (s *fakeStore) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	acct, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrAccountNotFound)
	}
	return acct, nil
}

func (s *fakeStore) GetEmail(_ context.Context, id string) (*domain.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emails[id]
	if !ok {
		return nil, fmt.Errorf("email %s not found", id)
	}
	return e, nil
}

func (s *fakeStore) DeleteEmail(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted[id] = true
	return nil
}

func (s *fakeStore) SetEmailRead(_ context.Context, id string, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readSet[id] = read
	return nil
}

func (s *fakeStore) SetEmailStarred(_ context.Context, id string, starred bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starredSet[id] = starred
	return nil
}

func (s *fakeStore) SetEmailFolder(_ context.Context, id string, folder domain.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folderSet[id] = folder
	return nil
}

// fakeAdapter records provider calls; message ids in fail error out and
// ids in unsupported get domain.ErrProviderUnsupported.
type fakeAdapter struct {
	mu          sync.Mutex
	fail        map[string]bool
	unsupported bool
	calls       []string
}

func (f *fakeAdapter) outcome(op, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+":"+messageID)
	if f.unsupported {
		return fmt.Errorf("star: %w", domain.ErrProviderUnsupported)
	}
	if f.fail[messageID] {
		return fmt.Errorf("%w: message %s rejected", domain.ErrFetch, messageID)
	}
	return nil
}

func (f *fakeAdapter) AuthURL(string) (string, error) { return "", domain.ErrProviderUnsupported }

func (f *fakeAdapter) ExchangeCode(context.Context, string) (provider.TokenPair, error) {
	return provider.TokenPair{}, domain.ErrProviderUnsupported
}

func (f *fakeAdapter) RefreshToken(context.Context, string) (provider.TokenPair, error) {
	return provider.TokenPair{}, domain.ErrProviderUnsupported
}

func (f *fakeAdapter) FetchMessages(context.Context, provider.Credential, domain.Folder, int) ([]domain.Email, error) {
	return nil, nil
}

func (f *fakeAdapter) SendMessage(context.Context, provider.Credential, *domain.Envelope) (string, error) {
	return "", nil
}

func (f *fakeAdapter) SetReadStatus(_ context.Context, _ provider.Credential, messageID string, _ bool) error {
	return f.outcome("read", messageID)
}

func (f *fakeAdapter) Move(_ context.Context, _ provider.Credential, messageID string, _ domain.Folder) error {
	return f.outcome("move", messageID)
}

func (f *fakeAdapter) Delete(_ context.Context, _ provider.Credential, messageID string, _ bool) error {
	return f.outcome("delete", messageID)
}

func (f *fakeAdapter) SetStarred(_ context.Context, _ provider.Credential, messageID string, _ bool) error {
	return f.outcome("star", messageID)
}

type fakeTokens struct{ err error }

func (f fakeTokens) ValidAccessToken(context.Context, string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	return "fresh-token", false, nil
}

func testAccount() *domain.Account {
	return &domain.Account{
		ID:           "acc-1",
		Email:        "alice@gmail.com",
		Provider:     domain.ProviderGmail,
		Status:       domain.StatusActive,
		AccessToken:  "stale",
		RefreshToken: "refresh",
	}
}

func testEmails(n int) []*domain.Email {
	var out []*domain.Email
	for i := 1; i <= n; i++ {
		out = append(out, &domain.Email{
			ID:                fmt.Sprintf("local-%d", i),
			AccountID:         "acc-1",
			ProviderMessageID: fmt.Sprintf("pm-%d", i),
			Folder:            domain.FolderInbox,
		})
	}
	return out
}

func newTestRouter(store *fakeStore, adapter *fakeAdapter, tokens fakeTokens) *Router {
	registry := provider.NewRegistry()
	registry.Register(domain.ProviderGmail, adapter)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(store, registry, tokens, logger)
}

func TestApply_PartialFailure(t *testing.T) {
	emails := testEmails(5)
	store := newFakeStore(testAccount(), emails...)
	adapter := &fakeAdapter{fail: map[string]bool{"pm-3": true}}
	r := newTestRouter(store, adapter, fakeTokens{})

	result, err := r.Apply(context.Background(), Request{
		Action:     domain.ActionMarkRead,
		AccountID:  "acc-1",
		MessageIDs: []string{"local-1", "local-2", "local-3", "local-4", "local-5"},
	})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if result.SuccessCount != 4 {
		t.Errorf("SuccessCount = %d, want 4", result.SuccessCount)
	}
	if result.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", result.FailureCount)
	}
	if len(result.PerItem) != 5 {
		t.Fatalf("len(PerItem) = %d, want 5", len(result.PerItem))
	}
	for _, item := range result.PerItem {
		wantOK := item.MessageID != "local-3"
		if item.OK != wantOK {
			t.Errorf("item %s OK = %v, want %v", item.MessageID, item.OK, wantOK)
		}
	}

	// Only successful items touch local state.
	if len(store.readSet) != 4 {
		t.Errorf("local updates = %d, want 4", len(store.readSet))
	}
	if _, ok := store.readSet["local-3"]; ok {
		t.Error("failed item local-3 was updated locally")
	}
}

func TestApply_UnsupportedActionIsSilentSuccess(t *testing.T) {
	emails := testEmails(2)
	store := newFakeStore(testAccount(), emails...)
	adapter := &fakeAdapter{unsupported: true}
	r := newTestRouter(store, adapter, fakeTokens{})

	result, err := r.Apply(context.Background(), Request{
		Action:     domain.ActionStar,
		AccountID:  "acc-1",
		MessageIDs: []string{"local-1", "local-2"},
	})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if result.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0 for unsupported action", result.FailureCount)
	}
	if len(store.starredSet) != 2 {
		t.Errorf("local updates = %d, want 2", len(store.starredSet))
	}
}

func TestApply_DeleteSemantics(t *testing.T) {
	emails := testEmails(2)
	store := newFakeStore(testAccount(), emails...)
	r := newTestRouter(store, &fakeAdapter{}, fakeTokens{})
	ctx := context.Background()

	if _, err := r.Apply(ctx, Request{
		Action:     domain.ActionDelete,
		AccountID:  "acc-1",
		MessageIDs: []string{"local-1"},
	}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if store.folderSet["local-1"] != domain.FolderTrash {
		t.Errorf("folder = %q, want trash for soft delete", store.folderSet["local-1"])
	}

	if _, err := r.Apply(ctx, Request{
		Action:     domain.ActionDelete,
		AccountID:  "acc-1",
		MessageIDs: []string{"local-2"},
		Permanent:  true,
	}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if !store.deleted["local-2"] {
		t.Error("permanent delete did not remove local row")
	}
}

func TestApply_UnknownMessageIsItemFailure(t *testing.T) {
	store := newFakeStore(testAccount(), testEmails(1)...)
	r := newTestRouter(store, &fakeAdapter{}, fakeTokens{})

	result, err := r.Apply(context.Background(), Request{
		Action:     domain.ActionMarkRead,
		AccountID:  "acc-1",
		MessageIDs: []string{"local-1", "local-ghost"},
	})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if result.SuccessCount != 1 || result.FailureCount != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)", result.SuccessCount, result.FailureCount)
	}
}

func TestApply_AccountLevelFailures(t *testing.T) {
	store := newFakeStore(testAccount(), testEmails(1)...)

	t.Run("unknown account", func(t *testing.T) {
		r := newTestRouter(store, &fakeAdapter{}, fakeTokens{})
		_, err := r.Apply(context.Background(), Request{
			Action:     domain.ActionMarkRead,
			AccountID:  "missing",
			MessageIDs: []string{"local-1"},
		})
		if !errors.Is(err, domain.ErrAccountNotFound) {
			t.Errorf("error = %v, want ErrAccountNotFound", err)
		}
	})

	t.Run("token refresh failure", func(t *testing.T) {
		r := newTestRouter(store, &fakeAdapter{}, fakeTokens{
			err: fmt.Errorf("account acc-1: %w", domain.ErrTokenRefresh),
		})
		_, err := r.Apply(context.Background(), Request{
			Action:     domain.ActionMarkRead,
			AccountID:  "acc-1",
			MessageIDs: []string{"local-1"},
		})
		if !errors.Is(err, domain.ErrTokenRefresh) {
			t.Errorf("error = %v, want ErrTokenRefresh", err)
		}
	})

	t.Run("move without target", func(t *testing.T) {
		r := newTestRouter(store, &fakeAdapter{}, fakeTokens{})
		if _, err := r.Apply(context.Background(), Request{
			Action:     domain.ActionMove,
			AccountID:  "acc-1",
			MessageIDs: []string{"local-1"},
		}); err == nil {
			t.Error("error = nil, want move target validation error")
		}
	})

	t.Run("invalid action", func(t *testing.T) {
		r := newTestRouter(store, &fakeAdapter{}, fakeTokens{})
		if _, err := r.Apply(context.Background(), Request{
			Action:     "explode",
			AccountID:  "acc-1",
			MessageIDs: []string{"local-1"},
		}); err == nil {
			t.Error("error = nil, want invalid action error")
		}
	})
}
