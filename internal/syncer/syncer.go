package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/provider"
)

// Store is the slice of the persistence layer the orchestrator needs.
type Store interface {
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	MarkAccountError(ctx context.Context, id, message string) error
	MarkAccountSynced(ctx context.Context, id string, at time.Time) error
	UpsertEmail(ctx context.Context, email *domain.Email) error
	CountEmails(ctx context.Context, accountID string, folder domain.Folder) (int, error)
}

// TokenSource hands out valid access tokens for OAuth accounts.
type TokenSource interface {
	ValidAccessToken(ctx context.Context, accountID string) (string, bool, error)
}

// Options tunes the sync loops.
type Options struct {
	// PrimaryInterval drives inbox syncs; SecondaryInterval drives the
	// lower-priority folders. The split sheds provider load.
	PrimaryInterval   time.Duration
	SecondaryInterval time.Duration

	// FetchTimeout bounds each account's fetch so one hanging provider
	// cannot delay the others.
	FetchTimeout time.Duration

	// FetchLimit is the per-folder message cap per pass.
	FetchLimit int
}

func (o *Options) applyDefaults() {
	if o.PrimaryInterval <= 0 {
		o.PrimaryInterval = 30 * time.Second
	}
	if o.SecondaryInterval <= 0 {
		o.SecondaryInterval = 3 * time.Minute
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 30 * time.Second
	}
	if o.FetchLimit <= 0 {
		o.FetchLimit = 50
	}
}

var (
	primaryFolders   = []domain.Folder{domain.FolderInbox}
	secondaryFolders = []domain.Folder{domain.FolderSent, domain.FolderArchive, domain.FolderSpam}
)

// notificationWindow is how long a "N new emails" notification stays
// visible to pollers before it is dropped.
const notificationWindow = 30 * time.Second

// Notification reports newly arrived mail in one account folder.
type Notification struct {
	AccountID string        `json:"account_id"`
	Folder    domain.Folder `json:"folder"`
	NewCount  int           `json:"new_count"`
	At        time.Time     `json:"at"`
}

// Status describes an account's sync state for callers.
type Status struct {
	IsSyncing  bool      `json:"is_syncing"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

// Orchestrator pulls messages from every active account's provider on a
// timer and upserts them locally. Accounts sync independently; one
// failing or slow account never blocks the others.
type Orchestrator struct {
	store    Store
	registry *provider.Registry
	tokens   TokenSource
	logger   *slog.Logger
	opts     Options
	now      func() time.Time

	mu            sync.Mutex
	syncing       map[string]bool
	lastCounts    map[string]int
	notifications []Notification

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(store Store, registry *provider.Registry, tokens TokenSource, logger *slog.Logger, opts Options) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		store:      store,
		registry:   registry,
		tokens:     tokens,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
		syncing:    make(map[string]bool),
		lastCounts: make(map[string]int),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the periodic sync loops. Stop shuts them down.
func (o *Orchestrator) Start(ctx context.Context) {
	o.wg.Add(2)
	go o.loop(ctx, o.opts.PrimaryInterval, primaryFolders)
	go o.loop(ctx, o.opts.SecondaryInterval, secondaryFolders)
}

func (o *Orchestrator) loop(ctx context.Context, interval time.Duration, folders []domain.Folder) {
	defer o.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.SyncAll(ctx, folders)
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the periodic loops and waits for in-flight passes to finish.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
}

// SyncAll syncs the given folders for every active account concurrently
// and waits for all of them to settle.
func (o *Orchestrator) SyncAll(ctx context.Context, folders []domain.Folder) {
	accounts, err := o.store.ListAccounts(ctx)
	if err != nil {
		o.logger.Error("failed to list accounts for sync", "error", err)
		return
	}

	var wg sync.WaitGroup
	for i := range accounts {
		acct := accounts[i]
		if acct.Status == domain.StatusDisconnected {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.syncAccount(ctx, &acct, folders)
		}()
	}
	wg.Wait()
}

// TriggerSync starts an immediate inbox sync for one account unless one is
// already running, and reports the account's sync state.
func (o *Orchestrator) TriggerSync(ctx context.Context, accountID string) (Status, error) {
	acct, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		return Status{}, err
	}

	o.mu.Lock()
	running := o.syncing[accountID]
	o.mu.Unlock()
	if running {
		return Status{IsSyncing: true, LastSyncAt: acct.LastSyncAt}, nil
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		// Detached from the request context: a triggered sync outlives
		// the HTTP call that asked for it.
		o.syncAccount(context.Background(), acct, primaryFolders)
	}()
	return Status{IsSyncing: true, LastSyncAt: acct.LastSyncAt}, nil
}

// AccountStatus reports an account's sync state without starting anything.
func (o *Orchestrator) AccountStatus(ctx context.Context, accountID string) (Status, error) {
	acct, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		return Status{}, err
	}
	o.mu.Lock()
	running := o.syncing[accountID]
	o.mu.Unlock()
	return Status{IsSyncing: running, LastSyncAt: acct.LastSyncAt}, nil
}

// syncAccount fetches and upserts the given folders for one account. All
// failures are recorded on the account and swallowed here so sibling
// accounts are unaffected.
func (o *Orchestrator) syncAccount(ctx context.Context, acct *domain.Account, folders []domain.Folder) {
	o.mu.Lock()
	if o.syncing[acct.ID] {
		o.mu.Unlock()
		return
	}
	o.syncing[acct.ID] = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.syncing, acct.ID)
		o.mu.Unlock()
	}()

	cred, err := o.credential(ctx, acct)
	if err != nil {
		o.recordFailure(ctx, acct.ID, err)
		return
	}

	adapter, err := o.registry.For(acct.Provider)
	if err != nil {
		o.recordFailure(ctx, acct.ID, err)
		return
	}

	for _, folder := range folders {
		if err := o.syncFolder(ctx, adapter, cred, acct.ID, folder); err != nil {
			o.recordFailure(ctx, acct.ID, err)
			return
		}
	}

	if err := o.store.MarkAccountSynced(ctx, acct.ID, o.now()); err != nil {
		o.logger.Error("failed to mark account synced", "account_id", acct.ID, "error", err)
	}
}

func (o *Orchestrator) syncFolder(ctx context.Context, adapter provider.Adapter, cred provider.Credential, accountID string, folder domain.Folder) error {
	fetchCtx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()

	msgs, err := adapter.FetchMessages(fetchCtx, cred, folder, o.opts.FetchLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", folder, err)
	}

	for i := range msgs {
		msgs[i].AccountID = accountID
		if err := o.store.UpsertEmail(ctx, &msgs[i]); err != nil {
			return fmt.Errorf("failed to upsert message %s: %w", msgs[i].ProviderMessageID, err)
		}
	}

	count, err := o.store.CountEmails(ctx, accountID, folder)
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", folder, err)
	}
	o.noteCount(accountID, folder, count)

	o.logger.Debug("synced folder",
		"account_id", accountID, "folder", folder, "fetched", len(msgs), "total", count)
	return nil
}

// credential resolves the material needed to reach the account's
// provider, refreshing OAuth tokens through the token source.
func (o *Orchestrator) credential(ctx context.Context, acct *domain.Account) (provider.Credential, error) {
	cred := provider.CredentialFor(acct)
	if !acct.Provider.UsesOAuth() {
		return cred, nil
	}
	access, _, err := o.tokens.ValidAccessToken(ctx, acct.ID)
	if err != nil {
		return provider.Credential{}, err
	}
	cred.AccessToken = access
	return cred, nil
}

// recordFailure stamps the failure onto the account. Token failures are
// not re-marked: the token manager already demoted the account with its
// stable message, and overwriting that would re-arm the refresh on the
// next pass.
func (o *Orchestrator) recordFailure(ctx context.Context, accountID string, err error) {
	o.logger.Warn("account sync failed", "account_id", accountID, "error", err)
	if errors.Is(err, domain.ErrTokenRefresh) || errors.Is(err, domain.ErrNoRefreshToken) || errors.Is(err, domain.ErrNoToken) {
		return
	}
	if markErr := o.store.MarkAccountError(ctx, accountID, err.Error()); markErr != nil {
		o.logger.Error("failed to record sync error", "account_id", accountID, "error", markErr)
	}
}

// noteCount compares the folder's message count against the previous pass
// and queues a new-mail notification when it grew. The first observation
// only sets the baseline.
func (o *Orchestrator) noteCount(accountID string, folder domain.Folder, count int) {
	key := accountID + "/" + string(folder)

	o.mu.Lock()
	defer o.mu.Unlock()
	prev, seen := o.lastCounts[key]
	o.lastCounts[key] = count
	if !seen || count <= prev {
		return
	}
	o.notifications = append(o.notifications, Notification{
		AccountID: accountID,
		Folder:    folder,
		NewCount:  count - prev,
		At:        o.now(),
	})
}

// Notifications returns the new-mail notifications still inside the
// display window and prunes the expired ones.
func (o *Orchestrator) Notifications() []Notification {
	cutoff := o.now().Add(-notificationWindow)

	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.notifications[:0]
	for _, n := range o.notifications {
		if n.At.After(cutoff) {
			kept = append(kept, n)
		}
	}
	o.notifications = kept
	out := make([]Notification, len(kept))
	copy(out, kept)
	return out
}
