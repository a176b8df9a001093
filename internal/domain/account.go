package domain

import "time"

// Provider identifies which backend an account talks to.
type Provider string

const (
	ProviderGmail     Provider = "gmail"
	ProviderMicrosoft Provider = "microsoft"
	ProviderIMAP      Provider = "imap"
	ProviderYahoo     Provider = "yahoo"
)

// UsesOAuth reports whether the provider authenticates with OAuth tokens.
// Yahoo accounts are driven over IMAP with app passwords, like generic IMAP.
func (p Provider) UsesOAuth() bool {
	return p == ProviderGmail || p == ProviderMicrosoft
}

// UsesIMAP reports whether the provider is reached over an IMAP session.
func (p Provider) UsesIMAP() bool {
	return p == ProviderIMAP || p == ProviderYahoo
}

// AccountStatus is the connection health of an account.
type AccountStatus string

const (
	StatusActive       AccountStatus = "active"
	StatusError        AccountStatus = "error"
	StatusDisconnected AccountStatus = "disconnected"
)

// Account is one connected mailbox. OAuth providers carry token fields;
// IMAP-style providers carry host credentials instead.
type Account struct {
	ID       string
	Email    string
	Provider Provider
	Status   AccountStatus

	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time

	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
	IMAPUseTLS   bool

	ConsecutiveErrors int
	LastSyncAt        time.Time
	LastSyncError     string

	CreatedAt time.Time
}

// HasCredentials reports whether the account carries enough material to
// reach its provider: a non-empty access token for OAuth providers, or a
// full host credential set for IMAP-style providers.
func (a *Account) HasCredentials() bool {
	if a.Provider.UsesOAuth() {
		return a.AccessToken != ""
	}
	return a.IMAPHost != "" && a.IMAPPort != 0 && a.IMAPUsername != "" && a.IMAPPassword != ""
}

// OwnerName derives the mailbox owner's display identity from the account,
// used by the IMAP sender-name correction.
func (a *Account) OwnerName() string {
	if a.IMAPUsername != "" {
		return a.IMAPUsername
	}
	return a.Email
}
