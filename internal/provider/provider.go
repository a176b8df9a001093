package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/unimail/unimail/internal/domain"
)

// Credential carries everything an adapter needs to talk to the provider on
// behalf of one account. OAuth adapters read AccessToken; IMAP adapters
// read the host fields. Owner is the mailbox owner's identity, used by the
// IMAP sender-name correction.
type Credential struct {
	AccessToken string

	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
	IMAPUseTLS   bool

	Owner string
}

// CredentialFor builds a Credential from an account. For OAuth providers
// the access token must already have been validated by the token manager.
func CredentialFor(acct *domain.Account) Credential {
	return Credential{
		AccessToken:  acct.AccessToken,
		IMAPHost:     acct.IMAPHost,
		IMAPPort:     acct.IMAPPort,
		IMAPUsername: acct.IMAPUsername,
		IMAPPassword: acct.IMAPPassword,
		IMAPUseTLS:   acct.IMAPUseTLS,
		Owner:        acct.OwnerName(),
	}
}

// TokenPair is the result of an OAuth code exchange or token refresh.
// RefreshToken may be empty when the provider does not rotate it; callers
// must then retain the previous value.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Adapter translates between the unified mail model and one concrete
// provider. All operations are idempotent network calls with no local
// state mutation; persisting results is the caller's job.
type Adapter interface {
	// AuthURL builds the provider's OAuth consent URL. IMAP-style
	// providers return domain.ErrProviderUnsupported.
	AuthURL(state string) (string, error)

	// ExchangeCode trades an OAuth authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (TokenPair, error)

	// RefreshToken mints a fresh access token from a refresh token.
	RefreshToken(ctx context.Context, refreshToken string) (TokenPair, error)

	// FetchMessages returns up to limit normalized messages from folder.
	FetchMessages(ctx context.Context, cred Credential, folder domain.Folder, limit int) ([]domain.Email, error)

	// SendMessage submits an outgoing message and returns the provider's
	// id for it.
	SendMessage(ctx context.Context, cred Credential, env *domain.Envelope) (string, error)

	// SetReadStatus marks a message read or unread. Idempotent.
	SetReadStatus(ctx context.Context, cred Credential, messageID string, read bool) error

	// Move relocates a message to the target folder using the provider's
	// native semantics.
	Move(ctx context.Context, cred Credential, messageID string, target domain.Folder) error

	// Delete removes a message. Providers that distinguish trash from
	// permanent deletion honor the flag; the rest have one deletion.
	Delete(ctx context.Context, cred Credential, messageID string, permanent bool) error

	// SetStarred stars or unstars a message. Providers without the
	// concept return domain.ErrProviderUnsupported.
	SetStarred(ctx context.Context, cred Credential, messageID string, starred bool) error
}

// Registry resolves the adapter for a provider. It replaces runtime
// provider switching scattered across call sites with one lookup.
type Registry struct {
	adapters map[domain.Provider]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[domain.Provider]Adapter)}
}

// Register binds an adapter to a provider, replacing any previous binding.
func (r *Registry) Register(p domain.Provider, a Adapter) {
	r.adapters[p] = a
}

// For returns the adapter registered for the provider.
func (r *Registry) For(p domain.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", p)
	}
	return a, nil
}
