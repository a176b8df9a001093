package imapmail

import (
	"context"
	"testing"

	"github.com/emersion/go-imap"

	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/provider"
)

// newTestAdapter wires an adapter to a pool that always hands out the
// given fake session.
func newTestAdapter(session *fakeSession) *Adapter {
	pool := NewPool(func(ctx context.Context, host string, port int, username, password string, useTLS bool) (Session, error) {
		return session, nil
	}, testLogger())
	return New(pool, testLogger())
}

func testCred() provider.Credential {
	return provider.Credential{
		IMAPHost:     "imap.example.com",
		IMAPPort:     993,
		IMAPUsername: "user@example.com",
		IMAPPassword: "pw",
		IMAPUseTLS:   true,
		Owner:        "user@example.com",
	}
}

func flagsStored(s *fakeSession) []string {
	var out []string
	for _, call := range s.storedFlags {
		for _, f := range call {
			if str, ok := f.(string); ok {
				out = append(out, str)
			}
		}
	}
	return out
}

func TestMove_ArchiveFallsBackToMarkRead(t *testing.T) {
	// No Archive/Archives/Archived mailbox exists.
	session := &fakeSession{mailboxes: []string{"INBOX", "Sent", "Trash"}}
	a := newTestAdapter(session)

	err := a.Move(context.Background(), testCred(), "INBOX:42", domain.FolderArchive)
	if err != nil {
		t.Fatalf("Move() error: %v, want fallback success", err)
	}

	flags := flagsStored(session)
	if len(flags) != 1 || flags[0] != imap.SeenFlag {
		t.Errorf("stored flags = %v, want [\\Seen] fallback", flags)
	}
	if len(session.copies) != 0 {
		t.Errorf("copies = %v, want none", session.copies)
	}
}

func TestMove_ArchiveUsesExistingFolder(t *testing.T) {
	session := &fakeSession{mailboxes: []string{"INBOX", "Sent", "Archives"}}
	a := newTestAdapter(session)

	err := a.Move(context.Background(), testCred(), "INBOX:42", domain.FolderArchive)
	if err != nil {
		t.Fatalf("Move() error: %v", err)
	}

	if len(session.copies) != 1 || session.copies[0] != "Archives" {
		t.Errorf("copies = %v, want [Archives]", session.copies)
	}
	flags := flagsStored(session)
	if len(flags) != 1 || flags[0] != imap.DeletedFlag {
		t.Errorf("stored flags = %v, want [\\Deleted]", flags)
	}
	if session.expunges != 1 {
		t.Errorf("expunges = %d, want 1", session.expunges)
	}
}

func TestMove_UsesSourceMailboxFromID(t *testing.T) {
	session := &fakeSession{mailboxes: []string{"INBOX", "Sent", "Trash"}}
	a := newTestAdapter(session)

	err := a.Move(context.Background(), testCred(), "Sent:42", domain.FolderTrash)
	if err != nil {
		t.Fatalf("Move() error: %v", err)
	}

	if session.selected != "Sent" {
		t.Errorf("selected mailbox = %q, want Sent", session.selected)
	}
	if len(session.copies) != 1 || session.copies[0] != "Trash" {
		t.Errorf("copies = %v, want [Trash]", session.copies)
	}
}

func TestDelete_TargetsMessageMailbox(t *testing.T) {
	session := &fakeSession{mailboxes: []string{"INBOX", "Sent"}}
	a := newTestAdapter(session)

	if err := a.Delete(context.Background(), testCred(), "Sent:7", false); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if session.selected != "Sent" {
		t.Errorf("selected mailbox = %q, want Sent", session.selected)
	}
}

func TestDelete_FlagsAndExpunges(t *testing.T) {
	session := &fakeSession{mailboxes: []string{"INBOX"}}
	a := newTestAdapter(session)

	if err := a.Delete(context.Background(), testCred(), "INBOX:7", false); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	flags := flagsStored(session)
	if len(flags) != 1 || flags[0] != imap.DeletedFlag {
		t.Errorf("stored flags = %v, want [\\Deleted]", flags)
	}
	if session.expunges != 1 {
		t.Errorf("expunges = %d, want 1", session.expunges)
	}
}

func TestSetReadStatus_Idempotent(t *testing.T) {
	session := &fakeSession{mailboxes: []string{"INBOX"}}
	a := newTestAdapter(session)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := a.SetReadStatus(ctx, testCred(), "INBOX:7", true); err != nil {
			t.Fatalf("SetReadStatus() call %d error: %v", i+1, err)
		}
	}
	if got := len(session.storedFlags); got != 2 {
		t.Errorf("store calls = %d, want 2", got)
	}
}

func TestSetReadStatus_UnreadRemovesFlag(t *testing.T) {
	session := &fakeSession{mailboxes: []string{"INBOX"}}
	a := newTestAdapter(session)

	if err := a.SetReadStatus(context.Background(), testCred(), "INBOX:7", false); err != nil {
		t.Fatalf("SetReadStatus() error: %v", err)
	}
	want := imap.FormatFlagsOp(imap.RemoveFlags, true)
	if len(session.storedItems) != 1 || session.storedItems[0] != want {
		t.Errorf("store item = %v, want %v", session.storedItems, want)
	}
}

func TestSetReadStatus_BadMessageID(t *testing.T) {
	a := newTestAdapter(&fakeSession{})
	err := a.SetReadStatus(context.Background(), testCred(), "not-a-uid", true)
	if err == nil {
		t.Error("SetReadStatus() with non-numeric id should fail")
	}
}

func TestFetchMessages_EmptyMailbox(t *testing.T) {
	session := &fakeSession{mailboxes: []string{"INBOX"}}
	a := newTestAdapter(session)

	msgs, err := a.FetchMessages(context.Background(), testCred(), domain.FolderInbox, 50)
	if err != nil {
		t.Fatalf("FetchMessages() error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("message count = %d, want 0", len(msgs))
	}
	if session.selected != "INBOX" {
		t.Errorf("selected mailbox = %q, want INBOX", session.selected)
	}
}

func TestFetchMessages_ParsesEnvelopes(t *testing.T) {
	session := &fakeSession{
		mailboxes: []string{"INBOX"},
		messages: []*imap.Message{
			{
				Uid:   101,
				Flags: []string{imap.SeenFlag},
				Envelope: &imap.Envelope{
					Subject: "Weekly report",
					From: []*imap.Address{
						{PersonalName: "Alice", MailboxName: "alice", HostName: "example.com"},
					},
					To: []*imap.Address{
						{MailboxName: "user", HostName: "example.com"},
					},
				},
			},
		},
	}
	a := newTestAdapter(session)

	msgs, err := a.FetchMessages(context.Background(), testCred(), domain.FolderInbox, 50)
	if err != nil {
		t.Fatalf("FetchMessages() error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("message count = %d, want 1", len(msgs))
	}
	m := msgs[0]
	if m.ProviderMessageID != "INBOX:101" {
		t.Errorf("ProviderMessageID = %q, want %q", m.ProviderMessageID, "INBOX:101")
	}
	if m.From.Email != "alice@example.com" {
		t.Errorf("From.Email = %q, want %q", m.From.Email, "alice@example.com")
	}
	if !m.IsRead {
		t.Error("IsRead = false, want true")
	}
	if m.Folder != domain.FolderInbox {
		t.Errorf("Folder = %q, want inbox", m.Folder)
	}
}

func TestFetchMessages_ScopesIDsByMailbox(t *testing.T) {
	// Servers keep UIDs unique per mailbox only: UID 1 in INBOX and UID 1
	// in Sent are different messages and must get different ids, or the
	// upsert key (account, provider message id) collapses them.
	session := &fakeSession{
		mailboxes: []string{"INBOX", "Sent"},
		messages: []*imap.Message{
			{Uid: 1, Envelope: &imap.Envelope{Subject: "hello"}},
		},
	}
	a := newTestAdapter(session)
	ctx := context.Background()

	inbox, err := a.FetchMessages(ctx, testCred(), domain.FolderInbox, 50)
	if err != nil {
		t.Fatalf("FetchMessages(inbox) error: %v", err)
	}
	sent, err := a.FetchMessages(ctx, testCred(), domain.FolderSent, 50)
	if err != nil {
		t.Fatalf("FetchMessages(sent) error: %v", err)
	}

	if got := inbox[0].ProviderMessageID; got != "INBOX:1" {
		t.Errorf("inbox ProviderMessageID = %q, want %q", got, "INBOX:1")
	}
	if got := sent[0].ProviderMessageID; got != "Sent:1" {
		t.Errorf("sent ProviderMessageID = %q, want %q", got, "Sent:1")
	}
	if inbox[0].ProviderMessageID == sent[0].ProviderMessageID {
		t.Error("same UID in different mailboxes mapped to one id")
	}
}

func TestParseMessageID(t *testing.T) {
	tests := []struct {
		in      string
		mailbox string
		uid     uint32
		wantErr bool
	}{
		{"INBOX:42", "INBOX", 42, false},
		{"Sent Items:7", "Sent Items", 7, false},
		{"42", "INBOX", 42, false},
		{":42", "", 0, true},
		{"INBOX:nope", "", 0, true},
		{"nope", "", 0, true},
	}
	for _, tt := range tests {
		mailbox, uid, err := parseMessageID(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseMessageID(%q) error = nil, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseMessageID(%q) error: %v", tt.in, err)
			continue
		}
		if mailbox != tt.mailbox || uid != tt.uid {
			t.Errorf("parseMessageID(%q) = (%q, %d), want (%q, %d)", tt.in, mailbox, uid, tt.mailbox, tt.uid)
		}
	}
}

func TestSmtpHost(t *testing.T) {
	tests := []struct{ in, want string }{
		{"imap.example.com", "smtp.example.com"},
		{"mail.example.com", "mail.example.com"},
	}
	for _, tt := range tests {
		if got := smtpHost(tt.in); got != tt.want {
			t.Errorf("smtpHost(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
