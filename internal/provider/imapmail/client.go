package imapmail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	_ "github.com/emersion/go-message/charset"

	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/provider"
)

// inboxMailbox is the canonical inbox name every IMAP server exposes.
const inboxMailbox = "INBOX"

// folderAliases lists mailbox names commonly used for each unified folder,
// in match-preference order. Matching is case-insensitive.
var folderAliases = map[domain.Folder][]string{
	domain.FolderInbox:   {"INBOX"},
	domain.FolderSent:    {"Sent", "Sent Items", "Sent Messages"},
	domain.FolderDrafts:  {"Drafts", "Draft"},
	domain.FolderTrash:   {"Trash", "Deleted Items", "Deleted Messages"},
	domain.FolderSpam:    {"Junk", "Spam", "Junk E-mail", "Bulk Mail"},
	domain.FolderArchive: {"Archive", "Archives", "Archived"},
}

// Adapter implements provider.Adapter over stateful IMAP sessions drawn
// from a connection pool. It also serves yahoo accounts, which differ only
// in their host defaults.
type Adapter struct {
	pool   *Pool
	logger *slog.Logger
}

// New creates an IMAP adapter backed by the given pool.
func New(pool *Pool, logger *slog.Logger) *Adapter {
	return &Adapter{pool: pool, logger: logger.With("component", "imap")}
}

// AuthURL has no IMAP equivalent.
func (a *Adapter) AuthURL(state string) (string, error) {
	return "", domain.ErrProviderUnsupported
}

// ExchangeCode has no IMAP equivalent.
func (a *Adapter) ExchangeCode(ctx context.Context, code string) (provider.TokenPair, error) {
	return provider.TokenPair{}, domain.ErrProviderUnsupported
}

// RefreshToken has no IMAP equivalent; credentials are stored passwords.
func (a *Adapter) RefreshToken(ctx context.Context, refreshToken string) (provider.TokenPair, error) {
	return provider.TokenPair{}, domain.ErrProviderUnsupported
}

func (a *Adapter) acquire(ctx context.Context, cred provider.Credential) (*Lease, error) {
	return a.pool.Acquire(ctx, cred.IMAPHost, cred.IMAPPort, cred.IMAPUsername, cred.IMAPPassword, cred.IMAPUseTLS)
}

// FetchMessages pulls the newest limit messages from the folder's
// mailbox, parsing MIME bodies and normalizing sender names.
func (a *Adapter) FetchMessages(ctx context.Context, cred provider.Credential, folder domain.Folder, limit int) ([]domain.Email, error) {
	lease, err := a.acquire(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	defer a.pool.Release(lease)

	mailbox, err := a.resolveMailbox(lease, folder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}

	mbox, err := lease.Select(mailbox, true)
	if err != nil {
		a.discardOnError(lease)
		return nil, fmt.Errorf("%w: failed to select %s: %v", domain.ErrFetch, mailbox, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	from := uint32(1)
	if limit > 0 && mbox.Messages > uint32(limit) {
		from = mbox.Messages - uint32(limit) + 1
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid,
		imap.FetchRFC822Size, section.FetchItem(),
	}

	messages := make(chan *imap.Message, 32)
	done := make(chan error, 1)
	go func() {
		done <- lease.Fetch(seqSet, items, messages)
	}()

	var emails []domain.Email
	for msg := range messages {
		email, err := parseMessage(msg, section, mailbox, folder, cred.Owner)
		if err != nil {
			a.logger.Warn("failed to parse message", "uid", msg.Uid, "error", err)
			continue
		}
		emails = append(emails, *email)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: failed to fetch from %s: %v", domain.ErrFetch, mailbox, err)
	}
	return emails, nil
}

// SendMessage submits through the account's SMTP endpoint, derived from
// the IMAP host.
func (a *Adapter) SendMessage(ctx context.Context, cred provider.Credential, env *domain.Envelope) (string, error) {
	host := smtpHost(cred.IMAPHost)
	addr := fmt.Sprintf("%s:%d", host, 587)

	to := make([]string, 0, len(env.To)+len(env.CC)+len(env.BCC))
	for _, lists := range [][]domain.Address{env.To, env.CC, env.BCC} {
		for _, rcpt := range lists {
			to = append(to, rcpt.Email)
		}
	}

	auth := smtp.PlainAuth("", cred.IMAPUsername, cred.IMAPPassword, host)
	raw := provider.BuildRawMessage(env)
	if err := smtp.SendMail(addr, auth, env.From.Email, to, []byte(raw)); err != nil {
		return "", fmt.Errorf("%w: smtp submission via %s failed: %v", domain.ErrSend, addr, err)
	}
	return "", nil
}

// smtpHost maps an IMAP hostname to its conventional SMTP sibling.
func smtpHost(imapHost string) string {
	if strings.HasPrefix(imapHost, "imap.") {
		return "smtp." + strings.TrimPrefix(imapHost, "imap.")
	}
	return imapHost
}

// SetReadStatus stores or clears the \Seen flag. Idempotent.
func (a *Adapter) SetReadStatus(ctx context.Context, cred provider.Credential, messageID string, read bool) error {
	mailbox, uid, err := parseMessageID(messageID)
	if err != nil {
		return err
	}
	lease, err := a.acquire(ctx, cred)
	if err != nil {
		return err
	}
	defer a.pool.Release(lease)

	return a.storeFlag(lease, mailbox, uid, imap.SeenFlag, read)
}

// Move copies the message to the target mailbox, then flags and expunges
// the original. Archiving degrades to mark-as-read when the mailbox has no
// archive folder: losing the filed location beats failing the action.
func (a *Adapter) Move(ctx context.Context, cred provider.Credential, messageID string, target domain.Folder) error {
	mailbox, uid, err := parseMessageID(messageID)
	if err != nil {
		return err
	}
	lease, err := a.acquire(ctx, cred)
	if err != nil {
		return err
	}
	defer a.pool.Release(lease)

	dest, err := a.resolveMailbox(lease, target)
	if err != nil {
		if target == domain.FolderArchive {
			a.logger.Info("no archive mailbox, marking read instead", "user", cred.IMAPUsername)
			return a.storeFlag(lease, mailbox, uid, imap.SeenFlag, true)
		}
		return err
	}

	if _, err := lease.Select(mailbox, false); err != nil {
		a.discardOnError(lease)
		return fmt.Errorf("failed to select %s: %w", mailbox, err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	if err := lease.UidCopy(seqSet, dest); err != nil {
		return fmt.Errorf("failed to copy message %d to %s: %w", uid, dest, err)
	}
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := lease.UidStore(seqSet, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return fmt.Errorf("failed to flag message %d deleted: %w", uid, err)
	}
	if err := lease.Expunge(nil); err != nil {
		return fmt.Errorf("failed to expunge after move: %w", err)
	}
	return nil
}

// Delete flags \Deleted and expunges. IMAP has a single deletion; the
// permanent flag changes nothing here.
func (a *Adapter) Delete(ctx context.Context, cred provider.Credential, messageID string, permanent bool) error {
	mailbox, uid, err := parseMessageID(messageID)
	if err != nil {
		return err
	}
	lease, err := a.acquire(ctx, cred)
	if err != nil {
		return err
	}
	defer a.pool.Release(lease)

	if _, err := lease.Select(mailbox, false); err != nil {
		a.discardOnError(lease)
		return fmt.Errorf("failed to select %s: %w", mailbox, err)
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := lease.UidStore(seqSet, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return fmt.Errorf("failed to flag message %d deleted: %w", uid, err)
	}
	if err := lease.Expunge(nil); err != nil {
		return fmt.Errorf("failed to expunge message %d: %w", uid, err)
	}
	return nil
}

// SetStarred is a Gmail concept with no IMAP mapping here.
func (a *Adapter) SetStarred(ctx context.Context, cred provider.Credential, messageID string, starred bool) error {
	return domain.ErrProviderUnsupported
}

func (a *Adapter) storeFlag(lease *Lease, mailbox string, uid uint32, flag string, set bool) error {
	if _, err := lease.Select(mailbox, false); err != nil {
		a.discardOnError(lease)
		return fmt.Errorf("failed to select %s: %w", mailbox, err)
	}
	op := imap.FlagsOp(imap.AddFlags)
	if !set {
		op = imap.RemoveFlags
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	item := imap.FormatFlagsOp(op, true)
	if err := lease.UidStore(seqSet, item, []interface{}{flag}, nil); err != nil {
		return fmt.Errorf("failed to store flag on message %d: %w", uid, err)
	}
	return nil
}

// resolveMailbox finds the server's real mailbox name for a unified
// folder by listing mailboxes and matching known aliases.
func (a *Adapter) resolveMailbox(lease *Lease, folder domain.Folder) (string, error) {
	if folder == domain.FolderInbox {
		return inboxMailbox, nil
	}
	aliases, ok := folderAliases[folder]
	if !ok {
		return "", fmt.Errorf("no mailbox aliases for folder %q", folder)
	}

	ch := make(chan *imap.MailboxInfo, 32)
	done := make(chan error, 1)
	go func() {
		done <- lease.List("", "*", ch)
	}()

	var names []string
	for info := range ch {
		names = append(names, info.Name)
	}
	if err := <-done; err != nil {
		return "", fmt.Errorf("failed to list mailboxes: %w", err)
	}

	for _, alias := range aliases {
		for _, name := range names {
			if strings.EqualFold(name, alias) {
				return name, nil
			}
		}
	}
	return "", fmt.Errorf("mailbox for folder %q not found", folder)
}

// discardOnError drops the lease's session from the pool so a broken
// connection is not handed out again. The deferred Release that follows
// becomes a no-op for the removed entry.
func (a *Adapter) discardOnError(lease *Lease) {
	a.pool.Discard(lease)
}

// formatMessageID scopes a UID by its mailbox. UIDs repeat across
// mailboxes, so a bare UID cannot identify a message account-wide.
func formatMessageID(mailbox string, uid uint32) string {
	return mailbox + ":" + strconv.FormatUint(uint64(uid), 10)
}

// parseMessageID splits a mailbox-scoped message id back into its parts.
// A bare UID is treated as an inbox message.
func parseMessageID(messageID string) (string, uint32, error) {
	mailbox := inboxMailbox
	uidPart := messageID
	if i := strings.LastIndexByte(messageID, ':'); i >= 0 {
		mailbox = messageID[:i]
		uidPart = messageID[i+1:]
	}
	if mailbox == "" {
		return "", 0, fmt.Errorf("invalid imap message id %q: empty mailbox", messageID)
	}
	uid, err := strconv.ParseUint(uidPart, 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid imap message id %q: %w", messageID, err)
	}
	return mailbox, uint32(uid), nil
}

// Compile-time interface compliance check.
var _ provider.Adapter = (*Adapter)(nil)
