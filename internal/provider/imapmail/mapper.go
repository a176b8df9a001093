package imapmail

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/mail"

	"github.com/unimail/unimail/internal/domain"
)

// parseMessage converts a fetched IMAP message into a unified Email,
// walking MIME parts for text and HTML bodies. The message id is scoped
// by the source mailbox because servers only keep UIDs unique within one.
func parseMessage(msg *imap.Message, section *imap.BodySectionName, mailbox string, folder domain.Folder, owner string) (*domain.Email, error) {
	if msg.Envelope == nil {
		return nil, fmt.Errorf("message %d has no envelope", msg.Uid)
	}

	email := &domain.Email{
		ProviderMessageID: formatMessageID(mailbox, msg.Uid),
		Subject:           msg.Envelope.Subject,
		ReceivedAt:        msg.Envelope.Date,
		SentAt:            msg.Envelope.Date,
		Folder:            folder,
		SizeBytes:         int64(msg.Size),
		IsRead:            hasFlag(msg.Flags, imap.SeenFlag),
		IsStarred:         hasFlag(msg.Flags, imap.FlaggedFlag),
	}

	if len(msg.Envelope.From) > 0 {
		from := msg.Envelope.From[0]
		email.From = correctSenderName(domain.Address{
			Name:  from.PersonalName,
			Email: from.Address(),
		}, owner)
	}
	email.To = mapEnvelopeAddresses(msg.Envelope.To)
	email.CC = mapEnvelopeAddresses(msg.Envelope.Cc)
	email.BCC = mapEnvelopeAddresses(msg.Envelope.Bcc)
	if msg.Envelope.MessageId != "" {
		email.ThreadID = msg.Envelope.MessageId
	}

	if body := msg.GetBody(section); body != nil {
		text, html, attachments, err := readParts(body)
		if err != nil {
			return nil, err
		}
		email.BodyText = text
		email.BodyHTML = html
		email.HasAttachments = attachments
	}
	return email, nil
}

// readParts walks the MIME structure collecting the first text/plain and
// text/html bodies and noting attachment parts.
func readParts(body io.Reader) (text, html string, attachments bool, err error) {
	mr, err := mail.CreateReader(body)
	if err != nil {
		return "", "", false, fmt.Errorf("failed to create mail reader: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return text, html, attachments, fmt.Errorf("failed to read part: %w", err)
		}
		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(ct, "text/html") && html == "":
				html = string(data)
			case strings.HasPrefix(ct, "text/plain") && text == "":
				text = string(data)
			}
		case *mail.AttachmentHeader:
			attachments = true
		}
	}
	return text, html, attachments, nil
}

func mapEnvelopeAddresses(addrs []*imap.Address) []domain.Address {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]domain.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, domain.Address{Name: a.PersonalName, Email: a.Address()})
	}
	return out
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

// correctSenderName works around providers whose replies echo the
// recipient's display name as the sender's. When the declared name matches
// the mailbox owner's name or username, a name derived from the sender's
// address is substituted. This is a heuristic tied to an observed provider
// quirk, not a correctness guarantee: legitimately self-addressed mail
// trips it too.
func correctSenderName(from domain.Address, owner string) domain.Address {
	if from.Name == "" || owner == "" {
		return from
	}
	if !matchesOwner(from.Name, owner) {
		return from
	}
	if derived := displayNameFromAddress(from.Email); derived != "" {
		from.Name = derived
	}
	return from
}

// matchesOwner compares a display name against the owner identity and its
// local part, case-insensitively.
func matchesOwner(name, owner string) bool {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, owner) {
		return true
	}
	if at := strings.IndexByte(owner, '@'); at > 0 {
		return strings.EqualFold(name, owner[:at])
	}
	return false
}

// displayNameFromAddress title-cases the address local part on the
// delimiters `.`, `_` and `-`: "jane.doe" becomes "Jane Doe".
func displayNameFromAddress(email string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		local = email[:at]
	}
	if local == "" {
		return ""
	}
	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
