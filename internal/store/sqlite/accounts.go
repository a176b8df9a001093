package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/unimail/unimail/internal/domain"
)

const accountColumns = `id, email, provider, status, access_token, refresh_token,
	token_expires_at, imap_host, imap_port, imap_username, imap_password,
	imap_use_tls, consecutive_errors, last_sync_at, last_sync_error, created_at`

func (s *DB) CreateAccount(ctx context.Context, acct *domain.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, provider, status, access_token, refresh_token,
			token_expires_at, imap_host, imap_port, imap_username, imap_password, imap_use_tls)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.ID, acct.Email, acct.Provider, acct.Status,
		acct.AccessToken, acct.RefreshToken, nullableTime(acct.TokenExpiresAt),
		acct.IMAPHost, acct.IMAPPort, acct.IMAPUsername, acct.IMAPPassword, acct.IMAPUseTLS,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *DB) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	return acct, nil
}

func (s *DB) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

// UpdateAccountTokens persists the refreshed credential set atomically:
// the access token never lands without its expiry, and a successful
// refresh resets the error state.
func (s *DB) UpdateAccountTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET access_token = ?, refresh_token = ?, token_expires_at = ?,
			status = ?, consecutive_errors = 0, last_sync_error = ''
		WHERE id = ?`,
		accessToken, refreshToken, expiresAt.UTC().Format(time.RFC3339),
		domain.StatusActive, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update tokens for account %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *DB) MarkAccountError(ctx context.Context, id, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET status = ?, last_sync_error = ?, consecutive_errors = consecutive_errors + 1
		WHERE id = ?`,
		domain.StatusError, message, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark account %s errored: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *DB) MarkAccountSynced(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET status = ?, last_sync_at = ?, last_sync_error = '', consecutive_errors = 0
		WHERE id = ?`,
		domain.StatusActive, at.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark account %s synced: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, domain.ErrAccountNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	var expiresAt, lastSyncAt, createdAt sql.NullString
	err := row.Scan(
		&a.ID, &a.Email, &a.Provider, &a.Status, &a.AccessToken, &a.RefreshToken,
		&expiresAt, &a.IMAPHost, &a.IMAPPort, &a.IMAPUsername, &a.IMAPPassword,
		&a.IMAPUseTLS, &a.ConsecutiveErrors, &lastSyncAt, &a.LastSyncError, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	a.TokenExpiresAt = parseNullTime(expiresAt)
	a.LastSyncAt = parseNullTime(lastSyncAt)
	a.CreatedAt = parseNullTime(createdAt)
	return &a, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	for _, format := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(format, s.String); err == nil {
			return t
		}
	}
	return time.Time{}
}
