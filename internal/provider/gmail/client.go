package gmail

import (
	"context"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/provider"
)

const userID = "me"

// Adapter implements provider.Adapter for Gmail. Folders are modeled as
// labels on the wire: archiving removes the INBOX label rather than moving
// the message anywhere.
type Adapter struct {
	oauth *oauth2.Config
}

// Config holds the Gmail OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// New creates a Gmail adapter.
func New(cfg Config) *Adapter {
	return &Adapter{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				gmailapi.GmailReadonlyScope,
				gmailapi.GmailSendScope,
				gmailapi.GmailModifyScope,
			},
			Endpoint: google.Endpoint,
		},
	}
}

// service builds a Gmail API client bound to the credential's access token.
func (a *Adapter) service(ctx context.Context, cred provider.Credential) (*gmailapi.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken})
	srv, err := gmailapi.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return srv, nil
}

// AuthURL builds the Gmail consent URL for the OAuth flow.
func (a *Adapter) AuthURL(state string) (string, error) {
	return a.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// ExchangeCode trades an authorization code for tokens.
func (a *Adapter) ExchangeCode(ctx context.Context, code string) (provider.TokenPair, error) {
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return provider.TokenPair{}, fmt.Errorf("%w: gmail: %v", domain.ErrAuthExchange, err)
	}
	return tokenPair(token), nil
}

// RefreshToken mints a fresh access token. Google usually keeps the same
// refresh token; tokenPair leaves RefreshToken empty in that case so the
// caller retains the previous value.
func (a *Adapter) RefreshToken(ctx context.Context, refreshToken string) (provider.TokenPair, error) {
	src := a.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return provider.TokenPair{}, fmt.Errorf("%w: gmail: %v", domain.ErrTokenRefresh, err)
	}
	pair := tokenPair(token)
	if token.RefreshToken == refreshToken {
		pair.RefreshToken = ""
	}
	return pair, nil
}

func tokenPair(t *oauth2.Token) provider.TokenPair {
	return provider.TokenPair{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    t.Expiry.Sub(nowFunc()),
	}
}

// FetchMessages lists up to limit messages in the unified folder.
func (a *Adapter) FetchMessages(ctx context.Context, cred provider.Credential, folder domain.Folder, limit int) ([]domain.Email, error) {
	srv, err := a.service(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}

	call := srv.Users.Messages.List(userID)
	if limit > 0 {
		call = call.MaxResults(int64(limit))
	}
	if label, ok := folderLabels[folder]; ok {
		call = call.LabelIds(label)
	} else if folder == domain.FolderArchive {
		// Archived mail carries no folder label at all.
		call = call.Q("-in:inbox -in:sent -in:drafts -in:trash -in:spam")
	} else {
		return nil, fmt.Errorf("%w: gmail has no folder %q", domain.ErrFetch, folder)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list gmail messages: %v", domain.ErrFetch, err)
	}

	emails := make([]domain.Email, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msg, err := srv.Users.Messages.Get(userID, m.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to get gmail message %s: %v", domain.ErrFetch, m.Id, err)
		}
		emails = append(emails, *mapMessage(msg))
	}
	return emails, nil
}

// SendMessage composes an RFC 2822 message and submits it.
func (a *Adapter) SendMessage(ctx context.Context, cred provider.Credential, env *domain.Envelope) (string, error) {
	srv, err := a.service(ctx, cred)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSend, err)
	}

	raw := provider.BuildRawMessage(env)
	msg := &gmailapi.Message{Raw: base64.URLEncoding.EncodeToString([]byte(raw))}
	sent, err := srv.Users.Messages.Send(userID, msg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: failed to send gmail message: %v", domain.ErrSend, err)
	}
	return sent.Id, nil
}

// SetReadStatus toggles the UNREAD label.
func (a *Adapter) SetReadStatus(ctx context.Context, cred provider.Credential, messageID string, read bool) error {
	if read {
		return a.modifyLabels(ctx, cred, messageID, nil, []string{"UNREAD"})
	}
	return a.modifyLabels(ctx, cred, messageID, []string{"UNREAD"}, nil)
}

// Move translates the unified folder verbs to label edits. Archiving is
// the removal of INBOX, not a move to an archive folder.
func (a *Adapter) Move(ctx context.Context, cred provider.Credential, messageID string, target domain.Folder) error {
	switch target {
	case domain.FolderArchive:
		return a.modifyLabels(ctx, cred, messageID, nil, []string{"INBOX"})
	case domain.FolderInbox:
		return a.modifyLabels(ctx, cred, messageID, []string{"INBOX"}, []string{"TRASH", "SPAM"})
	case domain.FolderSpam:
		return a.modifyLabels(ctx, cred, messageID, []string{"SPAM"}, []string{"INBOX"})
	case domain.FolderTrash:
		return a.Delete(ctx, cred, messageID, false)
	default:
		return fmt.Errorf("cannot move gmail message to folder %q", target)
	}
}

// Delete trashes the message, or removes it irreversibly when permanent.
func (a *Adapter) Delete(ctx context.Context, cred provider.Credential, messageID string, permanent bool) error {
	srv, err := a.service(ctx, cred)
	if err != nil {
		return err
	}
	if permanent {
		if err := srv.Users.Messages.Delete(userID, messageID).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete gmail message %s: %w", messageID, err)
		}
		return nil
	}
	if _, err := srv.Users.Messages.Trash(userID, messageID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to trash gmail message %s: %w", messageID, err)
	}
	return nil
}

// SetStarred toggles the STARRED label.
func (a *Adapter) SetStarred(ctx context.Context, cred provider.Credential, messageID string, starred bool) error {
	if starred {
		return a.modifyLabels(ctx, cred, messageID, []string{"STARRED"}, nil)
	}
	return a.modifyLabels(ctx, cred, messageID, nil, []string{"STARRED"})
}

func (a *Adapter) modifyLabels(ctx context.Context, cred provider.Credential, messageID string, add, remove []string) error {
	srv, err := a.service(ctx, cred)
	if err != nil {
		return err
	}
	req := &gmailapi.ModifyMessageRequest{AddLabelIds: add, RemoveLabelIds: remove}
	if _, err := srv.Users.Messages.Modify(userID, messageID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to modify labels on message %s: %w", messageID, err)
	}
	return nil
}

// folderLabels maps unified folders to Gmail's system label ids.
var folderLabels = map[domain.Folder]string{
	domain.FolderInbox:  "INBOX",
	domain.FolderSent:   "SENT",
	domain.FolderDrafts: "DRAFT",
	domain.FolderTrash:  "TRASH",
	domain.FolderSpam:   "SPAM",
}

// Compile-time interface compliance check.
var _ provider.Adapter = (*Adapter)(nil)
