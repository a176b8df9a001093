package microsoft

import (
	"time"

	"github.com/unimail/unimail/internal/domain"
)

// graphMessage is the subset of the Graph message resource the mapper
// consumes.
type graphMessage struct {
	ID               string           `json:"id"`
	ConversationID   string           `json:"conversationId"`
	Subject          string           `json:"subject"`
	BodyPreview      string           `json:"bodyPreview"`
	Body             *graphBody       `json:"body"`
	From             *graphRecipient  `json:"from"`
	ToRecipients     []graphRecipient `json:"toRecipients"`
	CcRecipients     []graphRecipient `json:"ccRecipients"`
	BccRecipients    []graphRecipient `json:"bccRecipients"`
	ReceivedDateTime string           `json:"receivedDateTime"`
	SentDateTime     string           `json:"sentDateTime"`
	IsRead           bool             `json:"isRead"`
	HasAttachments   bool             `json:"hasAttachments"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphAddress `json:"emailAddress"`
}

type graphAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// mapMessage converts a Graph message to a unified Email. The folder is
// the one the message was listed from; Graph reports parentFolderId but
// the well-known folder listing already scopes the result.
func mapMessage(msg *graphMessage, folder domain.Folder) *domain.Email {
	e := &domain.Email{
		ProviderMessageID: msg.ID,
		ThreadID:          msg.ConversationID,
		Subject:           msg.Subject,
		To:                mapRecipients(msg.ToRecipients),
		CC:                mapRecipients(msg.CcRecipients),
		BCC:               mapRecipients(msg.BccRecipients),
		ReceivedAt:        parseGraphTime(msg.ReceivedDateTime),
		SentAt:            parseGraphTime(msg.SentDateTime),
		IsRead:            msg.IsRead,
		HasAttachments:    msg.HasAttachments,
		Folder:            folder,
	}
	if msg.From != nil {
		e.From = domain.Address{
			Name:  msg.From.EmailAddress.Name,
			Email: msg.From.EmailAddress.Address,
		}
	}
	if msg.Body != nil {
		switch msg.Body.ContentType {
		case "html", "HTML":
			e.BodyHTML = msg.Body.Content
			e.BodyText = msg.BodyPreview
		default:
			e.BodyText = msg.Body.Content
		}
	} else {
		e.BodyText = msg.BodyPreview
	}
	return e
}

func mapRecipients(rs []graphRecipient) []domain.Address {
	if len(rs) == 0 {
		return nil
	}
	addrs := make([]domain.Address, 0, len(rs))
	for _, r := range rs {
		addrs = append(addrs, domain.Address{
			Name:  r.EmailAddress.Name,
			Email: r.EmailAddress.Address,
		})
	}
	return addrs
}

func parseGraphTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// buildGraphMessage converts an envelope to the Graph sendMail message
// shape.
func buildGraphMessage(env *domain.Envelope) map[string]any {
	contentType, content := "Text", env.BodyText
	if env.BodyHTML != "" {
		contentType, content = "HTML", env.BodyHTML
	}
	msg := map[string]any{
		"subject": env.Subject,
		"body": map[string]any{
			"contentType": contentType,
			"content":     content,
		},
		"toRecipients": buildRecipients(env.To),
	}
	if len(env.CC) > 0 {
		msg["ccRecipients"] = buildRecipients(env.CC)
	}
	if len(env.BCC) > 0 {
		msg["bccRecipients"] = buildRecipients(env.BCC)
	}
	return msg
}

func buildRecipients(addrs []domain.Address) []map[string]any {
	out := make([]map[string]any, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, map[string]any{
			"emailAddress": map[string]any{
				"name":    a.Name,
				"address": a.Email,
			},
		})
	}
	return out
}
