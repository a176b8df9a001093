package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/unimail/unimail/internal/action"
	"github.com/unimail/unimail/internal/ai"
	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/provider"
	"github.com/unimail/unimail/internal/store"
	"github.com/unimail/unimail/internal/syncer"
)

// Store is the slice of the persistence layer the API serves from.
type Store interface {
	CreateAccount(ctx context.Context, acct *domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	GetEmail(ctx context.Context, id string) (*domain.Email, error)
	ListEmails(ctx context.Context, opts store.ListOptions) ([]domain.Email, error)
	SearchEmails(ctx context.Context, query, accountID string) ([]domain.Email, error)
	SetEmailSummary(ctx context.Context, id, summary string) error
}

// Syncer is the sync orchestrator surface the API exposes.
type Syncer interface {
	TriggerSync(ctx context.Context, accountID string) (syncer.Status, error)
	AccountStatus(ctx context.Context, accountID string) (syncer.Status, error)
	Notifications() []syncer.Notification
}

// ActionRouter applies bulk user actions against providers.
type ActionRouter interface {
	Apply(ctx context.Context, req action.Request) (*domain.BulkActionResult, error)
}

// Summarizer is the optional AI summarization service.
type Summarizer interface {
	Enabled() bool
	Summarize(ctx context.Context, email *domain.Email) (*ai.Result, error)
}

// TokenSource resolves account credentials and reconnection state.
type TokenSource interface {
	ValidAccessToken(ctx context.Context, accountID string) (string, bool, error)
	NeedsReconnection(ctx context.Context, accountID string) bool
}

// Server is the HTTP API over the sync core.
type Server struct {
	echo       *echo.Echo
	store      Store
	sync       Syncer
	actions    ActionRouter
	tokens     TokenSource
	summarizer Summarizer
	registry   *provider.Registry
	logger     *slog.Logger
}

func NewServer(store Store, sync Syncer, actions ActionRouter, tokens TokenSource, summarizer Summarizer, registry *provider.Registry, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	s := &Server{
		echo:       e,
		store:      store,
		sync:       sync,
		actions:    actions,
		tokens:     tokens,
		summarizer: summarizer,
		registry:   registry,
		logger:     logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.echo.Group("/api")
	api.GET("/messages", s.listMessages)
	api.POST("/messages/send", s.sendMessage)
	api.POST("/messages/:id/summary", s.summarizeMessage)
	api.POST("/actions", s.applyAction)
	api.GET("/accounts", s.listAccounts)
	api.POST("/accounts", s.createAccount)
	api.POST("/accounts/:id/sync", s.triggerSync)
	api.GET("/accounts/:id/status", s.accountStatus)
	api.GET("/notifications", s.notifications)
}

// Start serves HTTP on addr until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests with a grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
