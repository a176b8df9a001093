package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/unimail/unimail/internal/action"
	"github.com/unimail/unimail/internal/ai"
	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/provider"
	"github.com/unimail/unimail/internal/store"
)

const defaultPageSize = 50

// Yahoo mailboxes are plain IMAP against a fixed host.
const (
	yahooIMAPHost = "imap.mail.yahoo.com"
	yahooIMAPPort = 993
)

type addressView struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type messageView struct {
	ID                string        `json:"id"`
	AccountID         string        `json:"account_id"`
	ProviderMessageID string        `json:"provider_message_id"`
	ThreadID          string        `json:"thread_id,omitempty"`
	From              addressView   `json:"from"`
	To                []addressView `json:"to,omitempty"`
	CC                []addressView `json:"cc,omitempty"`
	Subject           string        `json:"subject"`
	BodyText          string        `json:"body_text,omitempty"`
	BodyHTML          string        `json:"body_html,omitempty"`
	Summary           string        `json:"summary,omitempty"`
	ReceivedAt        time.Time     `json:"received_at"`
	IsRead            bool          `json:"is_read"`
	IsStarred         bool          `json:"is_starred"`
	HasAttachments    bool          `json:"has_attachments"`
	Folder            domain.Folder `json:"folder"`
}

func toAddressViews(addrs []domain.Address) []addressView {
	var out []addressView
	for _, a := range addrs {
		out = append(out, addressView{Name: a.Name, Email: a.Email})
	}
	return out
}

func toMessageView(e *domain.Email) messageView {
	return messageView{
		ID:                e.ID,
		AccountID:         e.AccountID,
		ProviderMessageID: e.ProviderMessageID,
		ThreadID:          e.ThreadID,
		From:              addressView{Name: e.From.Name, Email: e.From.Email},
		To:                toAddressViews(e.To),
		CC:                toAddressViews(e.CC),
		Subject:           e.Subject,
		BodyText:          e.BodyText,
		BodyHTML:          e.BodyHTML,
		Summary:           e.Summary,
		ReceivedAt:        e.ReceivedAt,
		IsRead:            e.IsRead,
		IsStarred:         e.IsStarred,
		HasAttachments:    e.HasAttachments,
		Folder:            e.Folder,
	}
}

// accountView redacts token and password material.
type accountView struct {
	ID            string               `json:"id"`
	Email         string               `json:"email"`
	Provider      domain.Provider      `json:"provider"`
	Status        domain.AccountStatus `json:"status"`
	LastSyncAt    *time.Time           `json:"last_sync_at,omitempty"`
	LastSyncError string               `json:"last_sync_error,omitempty"`
}

func toAccountView(a *domain.Account) accountView {
	v := accountView{
		ID:            a.ID,
		Email:         a.Email,
		Provider:      a.Provider,
		Status:        a.Status,
		LastSyncError: a.LastSyncError,
	}
	if !a.LastSyncAt.IsZero() {
		t := a.LastSyncAt
		v.LastSyncAt = &t
	}
	return v
}

func errorJSON(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNoToken),
		errors.Is(err, domain.ErrNoRefreshToken),
		errors.Is(err, domain.ErrTokenRefresh):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// listMessages serves the unified or account-scoped message list, with
// optional full-text search via the q parameter.
func (s *Server) listMessages(c echo.Context) error {
	ctx := c.Request().Context()
	accountID := c.QueryParam("account_id")
	if accountID == "all" {
		accountID = ""
	}

	if q := c.QueryParam("q"); q != "" {
		emails, err := s.store.SearchEmails(ctx, q, accountID)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, messageViews(emails))
	}

	opts := store.ListOptions{
		AccountID: accountID,
		Folder:    domain.Folder(c.QueryParam("folder")),
		Limit:     defaultPageSize,
	}
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Offset = n
		}
	}

	emails, err := s.store.ListEmails(ctx, opts)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, messageViews(emails))
}

func messageViews(emails []domain.Email) []messageView {
	out := make([]messageView, 0, len(emails))
	for i := range emails {
		out = append(out, toMessageView(&emails[i]))
	}
	return out
}

type actionRequest struct {
	Action       string   `json:"action"`
	AccountID    string   `json:"account_id"`
	MessageIDs   []string `json:"message_ids"`
	TargetFolder string   `json:"target_folder,omitempty"`
	Permanent    bool     `json:"permanent,omitempty"`
}

// applyAction runs one bulk action batch and returns per-item outcomes.
func (s *Server) applyAction(c echo.Context) error {
	var req actionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.MessageIDs) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message_ids is required"})
	}
	act := domain.Action(req.Action)
	if !act.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown action " + strconv.Quote(req.Action)})
	}

	result, err := s.actions.Apply(c.Request().Context(), action.Request{
		Action:       act,
		AccountID:    req.AccountID,
		MessageIDs:   req.MessageIDs,
		TargetFolder: domain.Folder(req.TargetFolder),
		Permanent:    req.Permanent,
	})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) listAccounts(c echo.Context) error {
	accounts, err := s.store.ListAccounts(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	views := make([]accountView, 0, len(accounts))
	for i := range accounts {
		views = append(views, toAccountView(&accounts[i]))
	}
	return c.JSON(http.StatusOK, views)
}

type createAccountRequest struct {
	Email        string `json:"email"`
	Provider     string `json:"provider"`
	IMAPHost     string `json:"imap_host,omitempty"`
	IMAPPort     int    `json:"imap_port,omitempty"`
	IMAPUsername string `json:"imap_username,omitempty"`
	IMAPPassword string `json:"imap_password,omitempty"`
	IMAPUseTLS   *bool  `json:"imap_use_tls,omitempty"`
}

// createAccount connects an IMAP-style mailbox. OAuth accounts are
// created by the OAuth callback flow, not here.
func (s *Server) createAccount(c echo.Context) error {
	var req createAccountRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	p := domain.Provider(req.Provider)
	if p.UsesOAuth() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "oauth accounts are connected through the consent flow"})
	}
	if !p.UsesIMAP() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown provider " + strconv.Quote(req.Provider)})
	}
	if req.Email == "" || req.IMAPPassword == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "email and imap_password are required"})
	}

	acct := &domain.Account{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Provider:     p,
		Status:       domain.StatusActive,
		IMAPHost:     req.IMAPHost,
		IMAPPort:     req.IMAPPort,
		IMAPUsername: req.IMAPUsername,
		IMAPPassword: req.IMAPPassword,
		IMAPUseTLS:   true,
	}
	if req.IMAPUseTLS != nil {
		acct.IMAPUseTLS = *req.IMAPUseTLS
	}
	if acct.IMAPUsername == "" {
		acct.IMAPUsername = req.Email
	}
	if p == domain.ProviderYahoo && acct.IMAPHost == "" {
		acct.IMAPHost = yahooIMAPHost
		acct.IMAPPort = yahooIMAPPort
	}
	if !acct.HasCredentials() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "imap_host and imap_port are required"})
	}

	if err := s.store.CreateAccount(c.Request().Context(), acct); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, toAccountView(acct))
}

func (s *Server) triggerSync(c echo.Context) error {
	status, err := s.sync.TriggerSync(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusAccepted, status)
}

type accountStatusResponse struct {
	Status            domain.AccountStatus `json:"status"`
	NeedsReconnection bool                 `json:"needs_reconnection"`
	IsSyncing         bool                 `json:"is_syncing"`
	LastSyncAt        *time.Time           `json:"last_sync_at,omitempty"`
	LastSyncError     string               `json:"last_sync_error,omitempty"`
}

func (s *Server) accountStatus(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	acct, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}
	syncStatus, err := s.sync.AccountStatus(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}

	resp := accountStatusResponse{
		Status:            acct.Status,
		NeedsReconnection: s.tokens.NeedsReconnection(ctx, id),
		IsSyncing:         syncStatus.IsSyncing,
		LastSyncError:     acct.LastSyncError,
	}
	if !acct.LastSyncAt.IsZero() {
		t := acct.LastSyncAt
		resp.LastSyncAt = &t
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) notifications(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sync.Notifications())
}

type summaryResponse struct {
	Summary          string   `json:"summary"`
	SuggestedReplies []string `json:"suggested_replies,omitempty"`
	Cached           bool     `json:"cached"`
}

// summarizeMessage returns the stored summary when present, otherwise
// asks the summarization service and persists the result.
func (s *Server) summarizeMessage(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	email, err := s.store.GetEmail(ctx, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	if email.Summary != "" {
		return c.JSON(http.StatusOK, summaryResponse{Summary: email.Summary, Cached: true})
	}
	if !s.summarizer.Enabled() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": ai.ErrDisabled.Error()})
	}

	result, err := s.summarizer.Summarize(ctx, email)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	if err := s.store.SetEmailSummary(ctx, id, result.Summary); err != nil {
		s.logger.Error("failed to persist summary", "message_id", id, "error", err)
	}
	return c.JSON(http.StatusOK, summaryResponse{
		Summary:          result.Summary,
		SuggestedReplies: result.SuggestedReplies,
	})
}

type sendRequest struct {
	AccountID string        `json:"account_id"`
	To        []addressView `json:"to"`
	CC        []addressView `json:"cc,omitempty"`
	BCC       []addressView `json:"bcc,omitempty"`
	Subject   string        `json:"subject"`
	BodyText  string        `json:"body_text,omitempty"`
	BodyHTML  string        `json:"body_html,omitempty"`
	InReplyTo string        `json:"in_reply_to,omitempty"`
}

// sendMessage submits an outgoing message through the account's provider.
func (s *Server) sendMessage(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.To) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "to is required"})
	}

	ctx := c.Request().Context()
	acct, err := s.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		return errorJSON(c, err)
	}

	cred := provider.CredentialFor(acct)
	if acct.Provider.UsesOAuth() {
		access, _, err := s.tokens.ValidAccessToken(ctx, req.AccountID)
		if err != nil {
			return errorJSON(c, err)
		}
		cred.AccessToken = access
	}

	adapter, err := s.registry.For(acct.Provider)
	if err != nil {
		return errorJSON(c, err)
	}

	env := &domain.Envelope{
		From:      domain.Address{Email: acct.Email},
		To:        fromAddressViews(req.To),
		CC:        fromAddressViews(req.CC),
		BCC:       fromAddressViews(req.BCC),
		Subject:   req.Subject,
		BodyText:  req.BodyText,
		BodyHTML:  req.BodyHTML,
		InReplyTo: req.InReplyTo,
	}
	messageID, err := adapter.SendMessage(ctx, cred, env)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message_id": messageID})
}

func fromAddressViews(views []addressView) []domain.Address {
	var out []domain.Address
	for _, v := range views {
		out = append(out, domain.Address{Name: v.Name, Email: v.Email})
	}
	return out
}
