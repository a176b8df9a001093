package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id                  TEXT PRIMARY KEY,
    email               TEXT NOT NULL UNIQUE,
    provider            TEXT NOT NULL,
    status              TEXT NOT NULL DEFAULT 'active',
    access_token        TEXT NOT NULL DEFAULT '',
    refresh_token       TEXT NOT NULL DEFAULT '',
    token_expires_at    DATETIME,
    imap_host           TEXT NOT NULL DEFAULT '',
    imap_port           INTEGER NOT NULL DEFAULT 0,
    imap_username       TEXT NOT NULL DEFAULT '',
    imap_password       TEXT NOT NULL DEFAULT '',
    imap_use_tls        BOOLEAN NOT NULL DEFAULT TRUE,
    consecutive_errors  INTEGER NOT NULL DEFAULT 0,
    last_sync_at        DATETIME,
    last_sync_error     TEXT NOT NULL DEFAULT '',
    created_at          DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS emails (
    id                  TEXT PRIMARY KEY,
    account_id          TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    provider_message_id TEXT NOT NULL,
    thread_id           TEXT NOT NULL DEFAULT '',
    from_addr           TEXT NOT NULL DEFAULT '',
    from_name           TEXT NOT NULL DEFAULT '',
    to_addrs            TEXT NOT NULL DEFAULT '',
    cc_addrs            TEXT NOT NULL DEFAULT '',
    bcc_addrs           TEXT NOT NULL DEFAULT '',
    subject             TEXT NOT NULL DEFAULT '',
    body_text           TEXT NOT NULL DEFAULT '',
    body_html           TEXT NOT NULL DEFAULT '',
    summary             TEXT NOT NULL DEFAULT '',
    received_at         DATETIME NOT NULL,
    sent_at             DATETIME,
    is_read             BOOLEAN NOT NULL DEFAULT FALSE,
    is_starred          BOOLEAN NOT NULL DEFAULT FALSE,
    has_attachments     BOOLEAN NOT NULL DEFAULT FALSE,
    folder              TEXT NOT NULL DEFAULT 'inbox',
    size_bytes          INTEGER NOT NULL DEFAULT 0,
    created_at          DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (account_id, provider_message_id)
);

CREATE INDEX IF NOT EXISTS idx_emails_account ON emails(account_id);
CREATE INDEX IF NOT EXISTS idx_emails_folder ON emails(account_id, folder);
CREATE INDEX IF NOT EXISTS idx_emails_received ON emails(received_at DESC);
`

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS emails_fts USING fts5(
    subject, body_text, from_addr, from_name,
    content='emails', content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS emails_ai AFTER INSERT ON emails BEGIN
    INSERT INTO emails_fts(rowid, subject, body_text, from_addr, from_name)
    VALUES (new.rowid, new.subject, new.body_text, new.from_addr, new.from_name);
END;

CREATE TRIGGER IF NOT EXISTS emails_ad AFTER DELETE ON emails BEGIN
    INSERT INTO emails_fts(emails_fts, rowid, subject, body_text, from_addr, from_name)
    VALUES ('delete', old.rowid, old.subject, old.body_text, old.from_addr, old.from_name);
END;

CREATE TRIGGER IF NOT EXISTS emails_au AFTER UPDATE ON emails BEGIN
    INSERT INTO emails_fts(emails_fts, rowid, subject, body_text, from_addr, from_name)
    VALUES ('delete', old.rowid, old.subject, old.body_text, old.from_addr, old.from_name);
    INSERT INTO emails_fts(rowid, subject, body_text, from_addr, from_name)
    VALUES (new.rowid, new.subject, new.body_text, new.from_addr, new.from_name);
END;
`
