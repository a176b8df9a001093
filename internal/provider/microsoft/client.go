package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/provider"
)

const defaultGraphBase = "https://graph.microsoft.com/v1.0"

// Adapter implements provider.Adapter for Microsoft 365 / Outlook via the
// Graph REST API. Unlike Gmail, folders are real objects here: moves go
// through a well-known-folder id lookup followed by the move endpoint.
type Adapter struct {
	oauth     *oauth2.Config
	http      *http.Client
	graphBase string
}

// Config holds the Microsoft OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Tenant       string
}

// New creates a Microsoft Graph adapter.
func New(cfg Config) *Adapter {
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}
	return &Adapter{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"offline_access",
				"https://graph.microsoft.com/Mail.ReadWrite",
				"https://graph.microsoft.com/Mail.Send",
			},
			Endpoint: microsoft.AzureADEndpoint(tenant),
		},
		http:      &http.Client{Timeout: 30 * time.Second},
		graphBase: defaultGraphBase,
	}
}

// AuthURL builds the Microsoft consent URL for the OAuth flow.
func (a *Adapter) AuthURL(state string) (string, error) {
	return a.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// ExchangeCode trades an authorization code for tokens.
func (a *Adapter) ExchangeCode(ctx context.Context, code string) (provider.TokenPair, error) {
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return provider.TokenPair{}, fmt.Errorf("%w: microsoft: %v", domain.ErrAuthExchange, err)
	}
	return provider.TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    time.Until(token.Expiry),
	}, nil
}

// RefreshToken mints a fresh access token. Microsoft rotates refresh
// tokens on every refresh, so the pair usually carries a new one.
func (a *Adapter) RefreshToken(ctx context.Context, refreshToken string) (provider.TokenPair, error) {
	src := a.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return provider.TokenPair{}, fmt.Errorf("%w: microsoft: %v", domain.ErrTokenRefresh, err)
	}
	pair := provider.TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    time.Until(token.Expiry),
	}
	if token.RefreshToken == refreshToken {
		pair.RefreshToken = ""
	}
	return pair, nil
}

// wellKnownFolders maps unified folders to Graph well-known folder names.
var wellKnownFolders = map[domain.Folder]string{
	domain.FolderInbox:   "inbox",
	domain.FolderSent:    "sentitems",
	domain.FolderDrafts:  "drafts",
	domain.FolderTrash:   "deleteditems",
	domain.FolderSpam:    "junkemail",
	domain.FolderArchive: "archive",
}

// FetchMessages lists up to limit messages in the unified folder.
func (a *Adapter) FetchMessages(ctx context.Context, cred provider.Credential, folder domain.Folder, limit int) ([]domain.Email, error) {
	wk, ok := wellKnownFolders[folder]
	if !ok {
		return nil, fmt.Errorf("%w: microsoft has no folder %q", domain.ErrFetch, folder)
	}

	q := url.Values{}
	if limit > 0 {
		q.Set("$top", fmt.Sprintf("%d", limit))
	}
	q.Set("$orderby", "receivedDateTime desc")

	var resp struct {
		Value []graphMessage `json:"value"`
	}
	path := fmt.Sprintf("/me/mailFolders/%s/messages?%s", wk, q.Encode())
	if err := a.do(ctx, cred, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to list microsoft messages: %v", domain.ErrFetch, err)
	}

	emails := make([]domain.Email, 0, len(resp.Value))
	for i := range resp.Value {
		emails = append(emails, *mapMessage(&resp.Value[i], folder))
	}
	return emails, nil
}

// SendMessage submits via the sendMail endpoint. Graph accepts with 202
// and reports no message id for the submission.
func (a *Adapter) SendMessage(ctx context.Context, cred provider.Credential, env *domain.Envelope) (string, error) {
	body := map[string]any{
		"message":         buildGraphMessage(env),
		"saveToSentItems": true,
	}
	if err := a.do(ctx, cred, http.MethodPost, "/me/sendMail", body, nil); err != nil {
		return "", fmt.Errorf("%w: failed to send microsoft message: %v", domain.ErrSend, err)
	}
	return "", nil
}

// SetReadStatus patches the isRead flag. Idempotent.
func (a *Adapter) SetReadStatus(ctx context.Context, cred provider.Credential, messageID string, read bool) error {
	body := map[string]any{"isRead": read}
	path := "/me/messages/" + url.PathEscape(messageID)
	if err := a.do(ctx, cred, http.MethodPatch, path, body, nil); err != nil {
		return fmt.Errorf("failed to set read status on message %s: %w", messageID, err)
	}
	return nil
}

// Move resolves the destination folder id, then issues the move call.
func (a *Adapter) Move(ctx context.Context, cred provider.Credential, messageID string, target domain.Folder) error {
	folderID, err := a.folderID(ctx, cred, target)
	if err != nil {
		return err
	}
	body := map[string]any{"destinationId": folderID}
	path := "/me/messages/" + url.PathEscape(messageID) + "/move"
	if err := a.do(ctx, cred, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to move message %s to %s: %w", messageID, target, err)
	}
	return nil
}

// Delete removes the message. Graph has one delete operation; permanent
// and soft deletes are not distinguished.
func (a *Adapter) Delete(ctx context.Context, cred provider.Credential, messageID string, permanent bool) error {
	path := "/me/messages/" + url.PathEscape(messageID)
	if err := a.do(ctx, cred, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", messageID, err)
	}
	return nil
}

// SetStarred is a Gmail concept; Graph flagging is not mapped to it.
func (a *Adapter) SetStarred(ctx context.Context, cred provider.Credential, messageID string, starred bool) error {
	return domain.ErrProviderUnsupported
}

// folderID resolves a unified folder to the mailbox's real folder id.
func (a *Adapter) folderID(ctx context.Context, cred provider.Credential, folder domain.Folder) (string, error) {
	wk, ok := wellKnownFolders[folder]
	if !ok {
		return "", fmt.Errorf("microsoft has no folder %q", folder)
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := a.do(ctx, cred, http.MethodGet, "/me/mailFolders/"+wk, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to resolve folder %s: %w", folder, err)
	}
	return resp.ID, nil
}

// do performs one Graph call, decoding the JSON response into out when
// out is non-nil.
func (a *Adapter) do(ctx context.Context, cred provider.Credential, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.graphBase+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("graph %s %s returned %d: %s", method, path, resp.StatusCode, snippet)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode graph response: %w", err)
		}
	}
	return nil
}

// Compile-time interface compliance check.
var _ provider.Adapter = (*Adapter)(nil)
