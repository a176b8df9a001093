package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/unimail/unimail/internal/domain"
)

// ErrDisabled is returned when no summarization endpoint is configured.
// The service is optional; callers degrade gracefully.
var ErrDisabled = errors.New("summarization not configured")

// maxBodyChars caps how much body text is shipped to the summarizer.
const maxBodyChars = 8000

// Client talks to an external summarization service over HTTP. The
// service is treated as opaque: one POST in, a summary and optional
// suggested replies out.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a summarization client. An empty baseURL disables it.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Enabled reports whether a summarization endpoint is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

type summarizeRequest struct {
	MessageID string `json:"message_id"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Result is the summarizer's response.
type Result struct {
	Summary          string   `json:"summary"`
	SuggestedReplies []string `json:"suggested_replies,omitempty"`
}

// Summarize sends the email's text to the summarization service. Emails
// with only an HTML body get their visible text extracted first.
func (c *Client) Summarize(ctx context.Context, email *domain.Email) (*Result, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	body := email.BodyText
	if body == "" {
		body = TextFromHTML(email.BodyHTML)
	}
	if body == "" {
		return nil, errors.New("email has no body to summarize")
	}
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}

	payload, err := json.Marshal(summarizeRequest{
		MessageID: email.ID,
		Subject:   email.Subject,
		Body:      body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/summarize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build summarize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("summarization request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("summarization service returned %d: %s", resp.StatusCode, snippet)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode summarize response: %w", err)
	}
	return &result, nil
}

// TextFromHTML extracts the visible text of an HTML document, dropping
// script and style content and collapsing whitespace.
func TextFromHTML(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()
	// Block boundaries become whitespace so words in adjacent elements
	// do not fuse when the text nodes are concatenated.
	doc.Find("br, p, div, li, td, tr, h1, h2, h3, h4, h5, h6, blockquote").AfterHtml(" ")
	return strings.Join(strings.Fields(doc.Text()), " ")
}
