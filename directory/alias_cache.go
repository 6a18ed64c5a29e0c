package directory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx"
)

// AliasCache is an optional, durable nickname↔account cache, additive to the
// required session-local Directory (spec.md §3 says the directory itself
// "is session-local and rebuilt on demand" — that invariant is preserved;
// this only remembers which nickname a user previously typed for an
// account, across restarts, purely for display).
//
// Grounded on the teacher's declared-but-otherwise-unused github.com/jackc/pgx
// dependency (see SPEC_FULL.md §6.4).
type AliasCache struct {
	conn *pgx.Conn
}

// OpenAliasCache connects to dsn and ensures the backing table exists.
func OpenAliasCache(ctx context.Context, dsn string) (*AliasCache, error) {
	cfg, err := pgx.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("directory: parse alias cache dsn: %w", err)
	}
	conn, err := pgx.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("directory: connect alias cache: %w", err)
	}
	_, err = conn.Exec(`
		CREATE TABLE IF NOT EXISTS account_aliases (
			account_id TEXT PRIMARY KEY,
			nickname   TEXT NOT NULL
		)
	`)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("directory: init alias cache schema: %w", err)
	}
	return &AliasCache{conn: conn}, nil
}

// Close releases the database connection.
func (a *AliasCache) Close() error {
	return a.conn.Close()
}

// Remember persists the nickname a user assigned to account.
func (a *AliasCache) Remember(account, nickname string) error {
	_, err := a.conn.Exec(`
		INSERT INTO account_aliases (account_id, nickname) VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET nickname = EXCLUDED.nickname
	`, account, nickname)
	if err != nil {
		return fmt.Errorf("directory: remember alias: %w", err)
	}
	return nil
}

// Nickname returns the previously remembered nickname for account, if any.
func (a *AliasCache) Nickname(account string) (string, bool, error) {
	row := a.conn.QueryRow(`SELECT nickname FROM account_aliases WHERE account_id = $1`, account)
	var nickname string
	err := row.Scan(&nickname)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("directory: lookup alias: %w", err)
	}
	return nickname, true, nil
}
