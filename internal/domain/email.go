package domain

import "time"

// Address is a single email address with an optional display name.
type Address struct {
	Name  string
	Email string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return a.Name + " <" + a.Email + ">"
}

// Folder is the unified mailbox location of a message. Each message sits in
// exactly one provider-reported location; Gmail's archived state (no INBOX
// label) maps to FolderArchive.
type Folder string

const (
	FolderInbox   Folder = "inbox"
	FolderSent    Folder = "sent"
	FolderDrafts  Folder = "drafts"
	FolderTrash   Folder = "trash"
	FolderSpam    Folder = "spam"
	FolderArchive Folder = "archive"
)

// Email is the unified message model all provider adapters normalize into.
// ID is internal; ProviderMessageID is the provider's own identifier and is
// unique within an account.
type Email struct {
	ID                string
	AccountID         string
	ProviderMessageID string
	ThreadID          string

	From Address
	To   []Address
	CC   []Address
	BCC  []Address

	Subject  string
	BodyText string
	BodyHTML string
	Summary  string

	ReceivedAt time.Time
	SentAt     time.Time

	IsRead         bool
	IsStarred      bool
	HasAttachments bool

	Folder    Folder
	SizeBytes int64
}

// Envelope describes an outgoing message handed to an adapter's send
// operation.
type Envelope struct {
	From     Address
	To       []Address
	CC       []Address
	BCC      []Address
	Subject   string
	BodyText  string
	BodyHTML  string
	InReplyTo string
}
