package gmail

import (
	"encoding/base64"
	"net/mail"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/unimail/unimail/internal/domain"
)

// nowFunc is swapped out in tests.
var nowFunc = time.Now

// mapMessage converts a Gmail API Message to a unified Email.
func mapMessage(msg *gmailapi.Message) *domain.Email {
	var headers []*gmailapi.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}

	text, html := extractBody(msg.Payload)

	return &domain.Email{
		ProviderMessageID: msg.Id,
		ThreadID:          msg.ThreadId,
		From:              parseAddress(findHeader(headers, "From")),
		To:                parseAddressList(findHeader(headers, "To")),
		CC:                parseAddressList(findHeader(headers, "Cc")),
		BCC:               parseAddressList(findHeader(headers, "Bcc")),
		Subject:           findHeader(headers, "Subject"),
		BodyText:          text,
		BodyHTML:          html,
		ReceivedAt:        time.UnixMilli(msg.InternalDate).UTC(),
		SentAt:            parseDate(findHeader(headers, "Date")),
		IsRead:            !containsLabel(msg.LabelIds, "UNREAD"),
		IsStarred:         containsLabel(msg.LabelIds, "STARRED"),
		HasAttachments:    hasAttachments(msg.Payload),
		Folder:            mapFolder(msg.LabelIds),
		SizeBytes:         msg.SizeEstimate,
	}
}

// mapFolder derives the unified folder from Gmail's system labels. A
// message carrying none of the location labels is archived.
func mapFolder(labelIDs []string) domain.Folder {
	switch {
	case containsLabel(labelIDs, "TRASH"):
		return domain.FolderTrash
	case containsLabel(labelIDs, "SPAM"):
		return domain.FolderSpam
	case containsLabel(labelIDs, "DRAFT"):
		return domain.FolderDrafts
	case containsLabel(labelIDs, "INBOX"):
		return domain.FolderInbox
	case containsLabel(labelIDs, "SENT"):
		return domain.FolderSent
	}
	return domain.FolderArchive
}

// findHeader performs a case-insensitive lookup for a header value.
func findHeader(headers []*gmailapi.MessagePartHeader, name string) string {
	lower := strings.ToLower(name)
	for _, h := range headers {
		if strings.ToLower(h.Name) == lower {
			return h.Value
		}
	}
	return ""
}

// parseAddress parses an RFC 5322 address string. Falls back to treating
// the entire string as a bare email if parsing fails.
func parseAddress(s string) domain.Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Address{}
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return domain.Address{Email: s}
	}
	return domain.Address{Name: addr.Name, Email: addr.Address}
}

// parseAddressList parses a comma-separated list of RFC 5322 addresses.
func parseAddressList(s string) []domain.Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parsed, err := mail.ParseAddressList(s)
	if err != nil {
		var addrs []domain.Address
		for _, p := range strings.Split(s, ",") {
			if a := parseAddress(p); a.Email != "" {
				addrs = append(addrs, a)
			}
		}
		return addrs
	}
	addrs := make([]domain.Address, 0, len(parsed))
	for _, a := range parsed {
		addrs = append(addrs, domain.Address{Name: a.Name, Email: a.Address})
	}
	return addrs
}

// parseDate tries multiple date formats commonly used in email headers.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2 Jan 2006 15:04:05 -0700",
		"2006-01-02T15:04:05Z07:00",
		"Mon, 02 Jan 2006 15:04:05 -0700 (MST)",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// extractBody recursively extracts text/plain and text/html content.
func extractBody(payload *gmailapi.MessagePart) (text, html string) {
	if payload == nil {
		return "", ""
	}
	if len(payload.Parts) > 0 {
		for _, part := range payload.Parts {
			t, h := extractBody(part)
			if text == "" && t != "" {
				text = t
			}
			if html == "" && h != "" {
				html = h
			}
		}
		return text, html
	}

	data := ""
	if payload.Body != nil {
		data = decodeBase64URL(payload.Body.Data)
	}
	switch payload.MimeType {
	case "text/plain":
		return data, ""
	case "text/html":
		return "", data
	}
	return "", ""
}

func hasAttachments(part *gmailapi.MessagePart) bool {
	if part == nil {
		return false
	}
	if part.Filename != "" && part.Body != nil {
		return true
	}
	for _, p := range part.Parts {
		if hasAttachments(p) {
			return true
		}
	}
	return false
}

// decodeBase64URL decodes Gmail's URL-safe base64 strings (no padding).
func decodeBase64URL(s string) string {
	if s == "" {
		return ""
	}
	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(s)
	if err != nil {
		return ""
	}
	return string(data)
}
