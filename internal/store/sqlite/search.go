package sqlite

import (
	"context"
	"fmt"

	"github.com/unimail/unimail/internal/domain"
)

// SearchEmails performs a full-text search across emails using FTS5. An
// empty accountID searches the unified view.
func (s *DB) SearchEmails(ctx context.Context, query, accountID string) ([]domain.Email, error) {
	sqlQuery := `
		SELECT ` + prefixedEmailColumns + `
		FROM emails e
		JOIN emails_fts fts ON fts.rowid = e.rowid
		WHERE emails_fts MATCH ?`
	args := []any{query}
	if accountID != "" {
		sqlQuery += " AND e.account_id = ?"
		args = append(args, accountID)
	}
	sqlQuery += " ORDER BY rank"

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	defer rows.Close()
	return collectEmails(rows)
}

const prefixedEmailColumns = `e.id, e.account_id, e.provider_message_id, e.thread_id,
	e.from_addr, e.from_name, e.to_addrs, e.cc_addrs, e.bcc_addrs,
	e.subject, e.body_text, e.body_html, e.summary, e.received_at, e.sent_at,
	e.is_read, e.is_starred, e.has_attachments, e.folder, e.size_bytes`
