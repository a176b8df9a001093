package domain

import "errors"

// Sentinel errors shared across the sync core. Callers match with
// errors.Is; sites that raise them wrap with fmt.Errorf("...: %w", err)
// to preserve context.
var (
	// ErrAccountNotFound means the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNoToken means an OAuth account has no access token at all.
	ErrNoToken = errors.New("account has no access token")

	// ErrNoRefreshToken means a refresh was required but no refresh token
	// is stored, so the user must reconnect the account.
	ErrNoRefreshToken = errors.New("account has no refresh token")

	// ErrAuthExchange means the provider rejected an OAuth code exchange.
	ErrAuthExchange = errors.New("auth code exchange failed")

	// ErrTokenRefresh means the provider rejected a token refresh. The
	// owning account transitions to StatusError when this is raised.
	ErrTokenRefresh = errors.New("token refresh failed")

	// ErrFetch means a message fetch failed on transport or parse.
	ErrFetch = errors.New("message fetch failed")

	// ErrSend means an outgoing message could not be submitted.
	ErrSend = errors.New("message send failed")

	// ErrProviderUnsupported means the action has no meaning for the
	// provider. The action router treats it as silent success.
	ErrProviderUnsupported = errors.New("operation not supported by provider")
)
