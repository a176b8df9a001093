package provider

import (
	"strings"

	"github.com/unimail/unimail/internal/domain"
)

// BuildRawMessage constructs an RFC 2822 message from an envelope, used by
// adapters that submit raw mail (Gmail's raw send, SMTP submission).
func BuildRawMessage(env *domain.Envelope) string {
	var b strings.Builder

	b.WriteString("From: " + env.From.String() + "\r\n")
	b.WriteString("To: " + joinAddresses(env.To) + "\r\n")
	if len(env.CC) > 0 {
		b.WriteString("Cc: " + joinAddresses(env.CC) + "\r\n")
	}
	if len(env.BCC) > 0 {
		b.WriteString("Bcc: " + joinAddresses(env.BCC) + "\r\n")
	}
	b.WriteString("Subject: " + env.Subject + "\r\n")
	if env.InReplyTo != "" {
		b.WriteString("In-Reply-To: " + env.InReplyTo + "\r\n")
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	if env.BodyHTML != "" {
		b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(env.BodyHTML)
	} else {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(env.BodyText)
	}
	return b.String()
}

func joinAddresses(addrs []domain.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}
