package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/provider"
)

// Store is the slice of the persistence layer the router needs.
type Store interface {
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	GetEmail(ctx context.Context, id string) (*domain.Email, error)
	DeleteEmail(ctx context.Context, id string) error
	SetEmailRead(ctx context.Context, id string, read bool) error
	SetEmailStarred(ctx context.Context, id string, starred bool) error
	SetEmailFolder(ctx context.Context, id string, folder domain.Folder) error
}

// TokenSource hands out valid access tokens for OAuth accounts.
type TokenSource interface {
	ValidAccessToken(ctx context.Context, accountID string) (string, bool, error)
}

// Request is one bulk action batch. MessageIDs are local email ids;
// TargetFolder applies to move, Permanent to delete.
type Request struct {
	Action       domain.Action
	AccountID    string
	MessageIDs   []string
	TargetFolder domain.Folder
	Permanent    bool
}

// Router dispatches local user actions to the owning provider, one
// outcome per message. Batches are best-effort: item failures are
// collected, never raised, and only successful items touch local state.
type Router struct {
	store    Store
	registry *provider.Registry
	tokens   TokenSource
	logger   *slog.Logger
}

func NewRouter(store Store, registry *provider.Registry, tokens TokenSource, logger *slog.Logger) *Router {
	return &Router{store: store, registry: registry, tokens: tokens, logger: logger}
}

// Apply runs the batch against the provider and reconciles local state
// for the items that succeeded. The returned error covers account-level
// failures only (unknown account, unusable credentials); per-item
// failures live in the result.
func (r *Router) Apply(ctx context.Context, req Request) (*domain.BulkActionResult, error) {
	if !req.Action.Valid() {
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}
	if req.Action == domain.ActionMove && req.TargetFolder == "" {
		return nil, errors.New("move requires a target folder")
	}

	acct, err := r.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	cred := provider.CredentialFor(acct)
	if acct.Provider.UsesOAuth() {
		access, _, err := r.tokens.ValidAccessToken(ctx, req.AccountID)
		if err != nil {
			return nil, err
		}
		cred.AccessToken = access
	}

	adapter, err := r.registry.For(acct.Provider)
	if err != nil {
		return nil, err
	}

	// Fan out per item, then join: callers need the full outcome set.
	outcomes := make([]error, len(req.MessageIDs))
	var wg sync.WaitGroup
	for i, id := range req.MessageIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = r.applyOne(ctx, adapter, cred, req, id)
		}()
	}
	wg.Wait()

	result := &domain.BulkActionResult{}
	for i, id := range req.MessageIDs {
		result.Add(id, outcomes[i])
		if outcomes[i] == nil {
			r.reconcile(ctx, req, id)
		}
	}

	if result.FailureCount > 0 {
		r.logger.Warn("bulk action partially failed",
			"action", req.Action, "account_id", req.AccountID,
			"succeeded", result.SuccessCount, "failed", result.FailureCount)
	}
	return result, nil
}

// applyOne performs the provider call for a single message. Providers
// that do not support the action report success: nothing is wrong with
// the message, the concept just does not exist there.
func (r *Router) applyOne(ctx context.Context, adapter provider.Adapter, cred provider.Credential, req Request, id string) error {
	email, err := r.store.GetEmail(ctx, id)
	if err != nil {
		return err
	}
	pmID := email.ProviderMessageID

	switch req.Action {
	case domain.ActionMarkRead:
		err = adapter.SetReadStatus(ctx, cred, pmID, true)
	case domain.ActionMarkUnread:
		err = adapter.SetReadStatus(ctx, cred, pmID, false)
	case domain.ActionArchive:
		err = adapter.Move(ctx, cred, pmID, domain.FolderArchive)
	case domain.ActionMove:
		err = adapter.Move(ctx, cred, pmID, req.TargetFolder)
	case domain.ActionDelete:
		err = adapter.Delete(ctx, cred, pmID, req.Permanent)
	case domain.ActionStar:
		err = adapter.SetStarred(ctx, cred, pmID, true)
	case domain.ActionUnstar:
		err = adapter.SetStarred(ctx, cred, pmID, false)
	}
	if errors.Is(err, domain.ErrProviderUnsupported) {
		return nil
	}
	return err
}

// reconcile updates local state for one successfully applied item. A
// failed local write is logged, not surfaced: the provider call already
// happened and the next sync pass converges the row anyway.
func (r *Router) reconcile(ctx context.Context, req Request, id string) {
	var err error
	switch req.Action {
	case domain.ActionMarkRead:
		err = r.store.SetEmailRead(ctx, id, true)
	case domain.ActionMarkUnread:
		err = r.store.SetEmailRead(ctx, id, false)
	case domain.ActionArchive:
		err = r.store.SetEmailFolder(ctx, id, domain.FolderArchive)
	case domain.ActionMove:
		err = r.store.SetEmailFolder(ctx, id, req.TargetFolder)
	case domain.ActionDelete:
		if req.Permanent {
			err = r.store.DeleteEmail(ctx, id)
		} else {
			err = r.store.SetEmailFolder(ctx, id, domain.FolderTrash)
		}
	case domain.ActionStar:
		err = r.store.SetEmailStarred(ctx, id, true)
	case domain.ActionUnstar:
		err = r.store.SetEmailStarred(ctx, id, false)
	}
	if err != nil {
		r.logger.Error("failed to reconcile local state",
			"action", req.Action, "message_id", id, "error", err)
	}
}
