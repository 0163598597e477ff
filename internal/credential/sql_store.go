package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"session-marketplace/internal/model"
)

const sqlTimeout = 5 * time.Second

// SQLStore keeps the two slots as rows of credential_slots. Statements are
// written with ? placeholders and rebound to $n for PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dollars bool
}

// OpenSQLStore opens backend "sqlite" (dsn is a file path) or "postgres"
// (dsn is a connection URL) and ensures the schema exists.
func OpenSQLStore(ctx context.Context, backend string, dsn string) (*SQLStore, error) {
	driver, err := driverFor(backend)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("credential dsn is required for %s", backend)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open credential db: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	store := NewSQLStore(db, driver)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database. driver is "sqlite" or "pgx".
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, dollars: driver == "pgx"}
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS credential_slots (
		slot  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("ensure credential schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Save(pair model.CredentialPair) {
	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()

	if err := s.save(ctx, pair); err != nil {
		slog.Error("credential save failed", "error", err)
	}
}

func (s *SQLStore) save(ctx context.Context, pair model.CredentialPair) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range [][2]string{{AccessSlot, pair.Access}, {RefreshSlot, pair.Refresh}} {
		if _, err := tx.ExecContext(ctx,
			s.rebind(`INSERT INTO credential_slots (slot, value) VALUES (?, ?)
			 ON CONFLICT (slot) DO UPDATE SET value = excluded.value`),
			row[0], row[1]); err != nil {
			return fmt.Errorf("upsert %s: %w", row[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) Read() (model.CredentialPair, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT slot, value FROM credential_slots WHERE slot IN (?, ?)`),
		AccessSlot, RefreshSlot)
	if err != nil {
		slog.Warn("credential read failed", "error", err)
		return model.CredentialPair{}, false
	}
	defer rows.Close()

	var pair model.CredentialPair
	for rows.Next() {
		var slot, value string
		if err := rows.Scan(&slot, &value); err != nil {
			slog.Warn("credential scan failed", "error", err)
			return model.CredentialPair{}, false
		}
		switch slot {
		case AccessSlot:
			pair.Access = value
		case RefreshSlot:
			pair.Refresh = value
		}
	}
	if err := rows.Err(); err != nil {
		slog.Warn("credential read failed", "error", err)
		return model.CredentialPair{}, false
	}

	return pair, !pair.Empty()
}

func (s *SQLStore) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM credential_slots WHERE slot IN (?, ?)`),
		AccessSlot, RefreshSlot); err != nil {
		slog.Error("credential clear failed", "error", err)
	}
}

// ReplaceAccess only touches an existing access row, so it never creates a
// half pair.
func (s *SQLStore) ReplaceAccess(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE credential_slots SET value = ? WHERE slot = ?`),
		token, AccessSlot); err != nil {
		slog.Error("credential access replace failed", "error", err)
	}
}

func (s *SQLStore) rebind(query string) string {
	if !s.dollars {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func driverFor(backend string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "sqlite":
		return "sqlite", nil
	case "postgres", "postgresql", "pgx":
		return "pgx", nil
	default:
		return "", errors.New("unsupported credential backend: " + backend)
	}
}
