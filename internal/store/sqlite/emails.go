package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/store"
)

// ErrEmailNotFound is returned for lookups of unknown message ids.
var ErrEmailNotFound = errors.New("email not found")

// UpsertEmail inserts the email or, when (account_id, provider_message_id)
// already exists, updates the mutable fields only. Bodies are kept when
// the incoming row is partial. The email's internal ID is filled in either
// way.
func (s *DB) UpsertEmail(ctx context.Context, email *domain.Email) error {
	if email.ID == "" {
		email.ID = uuid.NewString()
	}
	toJSON, err := marshalAddresses(email.To)
	if err != nil {
		return fmt.Errorf("failed to marshal To addresses: %w", err)
	}
	ccJSON, err := marshalAddresses(email.CC)
	if err != nil {
		return fmt.Errorf("failed to marshal CC addresses: %w", err)
	}
	bccJSON, err := marshalAddresses(email.BCC)
	if err != nil {
		return fmt.Errorf("failed to marshal BCC addresses: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emails (id, account_id, provider_message_id, thread_id,
			from_addr, from_name, to_addrs, cc_addrs, bcc_addrs,
			subject, body_text, body_html, received_at, sent_at,
			is_read, is_starred, has_attachments, folder, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, provider_message_id) DO UPDATE SET
			thread_id       = excluded.thread_id,
			is_read         = excluded.is_read,
			is_starred      = excluded.is_starred,
			folder          = excluded.folder,
			has_attachments = excluded.has_attachments,
			body_text = CASE WHEN excluded.body_text != '' THEN excluded.body_text ELSE emails.body_text END,
			body_html = CASE WHEN excluded.body_html != '' THEN excluded.body_html ELSE emails.body_html END`,
		email.ID, email.AccountID, email.ProviderMessageID, email.ThreadID,
		email.From.Email, email.From.Name, toJSON, ccJSON, bccJSON,
		email.Subject, email.BodyText, email.BodyHTML,
		email.ReceivedAt.UTC().Format(time.RFC3339), nullableTime(email.SentAt),
		email.IsRead, email.IsStarred, email.HasAttachments,
		email.Folder, email.SizeBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert email %s: %w", email.ProviderMessageID, err)
	}

	// The conflict path keeps the existing internal id; read it back so
	// the caller always holds the canonical one.
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM emails WHERE account_id = ? AND provider_message_id = ?`,
		email.AccountID, email.ProviderMessageID,
	).Scan(&email.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve email id: %w", err)
	}
	return nil
}

const emailColumns = `id, account_id, provider_message_id, thread_id,
	from_addr, from_name, to_addrs, cc_addrs, bcc_addrs,
	subject, body_text, body_html, summary, received_at, sent_at,
	is_read, is_starred, has_attachments, folder, size_bytes`

// GetEmail retrieves a single email by internal id.
func (s *DB) GetEmail(ctx context.Context, id string) (*domain.Email, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id)
	email, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email %s: %w", id, ErrEmailNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email %s: %w", id, err)
	}
	return email, nil
}

// ListEmails returns emails newest-first, scoped to an account and/or
// folder when set. An empty AccountID yields the unified view.
func (s *DB) ListEmails(ctx context.Context, opts store.ListOptions) ([]domain.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails`
	var conds []string
	var args []any

	if opts.AccountID != "" {
		conds = append(conds, "account_id = ?")
		args = append(args, opts.AccountID)
	}
	if opts.Folder != "" {
		conds = append(conds, "folder = ?")
		args = append(args, opts.Folder)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY received_at DESC"
	if opts.Limit > 0 || opts.Offset > 0 {
		// OFFSET needs a LIMIT clause; -1 means unbounded.
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	defer rows.Close()
	return collectEmails(rows)
}

// CountEmails counts messages in an account/folder scope.
func (s *DB) CountEmails(ctx context.Context, accountID string, folder domain.Folder) (int, error) {
	query := `SELECT COUNT(*) FROM emails WHERE folder = ?`
	args := []any{folder}
	if accountID != "" {
		query += " AND account_id = ?"
		args = append(args, accountID)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count emails: %w", err)
	}
	return n, nil
}

func (s *DB) DeleteEmail(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM emails WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete email %s: %w", id, err)
	}
	return nil
}

func (s *DB) SetEmailRead(ctx context.Context, id string, read bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE emails SET is_read = ? WHERE id = ?`, read, id)
	if err != nil {
		return fmt.Errorf("failed to set read on email %s: %w", id, err)
	}
	return nil
}

func (s *DB) SetEmailStarred(ctx context.Context, id string, starred bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE emails SET is_starred = ? WHERE id = ?`, starred, id)
	if err != nil {
		return fmt.Errorf("failed to set starred on email %s: %w", id, err)
	}
	return nil
}

func (s *DB) SetEmailFolder(ctx context.Context, id string, folder domain.Folder) error {
	_, err := s.db.ExecContext(ctx, `UPDATE emails SET folder = ? WHERE id = ?`, folder, id)
	if err != nil {
		return fmt.Errorf("failed to set folder on email %s: %w", id, err)
	}
	return nil
}

func (s *DB) SetEmailSummary(ctx context.Context, id, summary string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE emails SET summary = ? WHERE id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("failed to set summary on email %s: %w", id, err)
	}
	return nil
}

func marshalAddresses(addrs []domain.Address) (string, error) {
	if len(addrs) == 0 {
		return "", nil
	}
	data, err := json.Marshal(addrs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalAddresses(s string) ([]domain.Address, error) {
	if s == "" {
		return nil, nil
	}
	var addrs []domain.Address
	if err := json.Unmarshal([]byte(s), &addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

func scanEmail(row rowScanner) (*domain.Email, error) {
	var e domain.Email
	var fromAddr, fromName, toJSON, ccJSON, bccJSON string
	var receivedStr string
	var sentStr sql.NullString

	err := row.Scan(
		&e.ID, &e.AccountID, &e.ProviderMessageID, &e.ThreadID,
		&fromAddr, &fromName, &toJSON, &ccJSON, &bccJSON,
		&e.Subject, &e.BodyText, &e.BodyHTML, &e.Summary, &receivedStr, &sentStr,
		&e.IsRead, &e.IsStarred, &e.HasAttachments, &e.Folder, &e.SizeBytes,
	)
	if err != nil {
		return nil, err
	}

	e.From = domain.Address{Name: fromName, Email: fromAddr}
	if e.To, err = unmarshalAddresses(toJSON); err != nil {
		return nil, fmt.Errorf("failed to unmarshal To addresses: %w", err)
	}
	if e.CC, err = unmarshalAddresses(ccJSON); err != nil {
		return nil, fmt.Errorf("failed to unmarshal CC addresses: %w", err)
	}
	if e.BCC, err = unmarshalAddresses(bccJSON); err != nil {
		return nil, fmt.Errorf("failed to unmarshal BCC addresses: %w", err)
	}
	e.ReceivedAt = parseNullTime(sql.NullString{String: receivedStr, Valid: true})
	e.SentAt = parseNullTime(sentStr)
	return &e, nil
}

func collectEmails(rows *sql.Rows) ([]domain.Email, error) {
	var emails []domain.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email row: %w", err)
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}
