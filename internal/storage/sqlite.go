package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "sellerbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Ledger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes every read-modify-write on the stock table.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadKeys(ctx context.Context, set string) ([]string, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM keysets WHERE name = ?`, set).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal([]byte(data), &keys); err != nil {
		return nil, fmt.Errorf("decode key set %q: %w", set, err)
	}
	return keys, nil
}

func (s *sqliteStore) ReplaceKeys(ctx context.Context, set string, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	b, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO keysets(name, data, updated_at) VALUES(?,?,?)
		 ON CONFLICT(name) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		set, string(b), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) AppendStock(ctx context.Context, product string, values []string, at time.Time) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO autodelivery(product, value, created_at) VALUES(?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	ts := at.UTC().Format(time.RFC3339Nano)
	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, product, v, ts); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(values), nil
}

func (s *sqliteStore) PopStock(ctx context.Context, product string) (string, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id    int64
		value string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, value FROM autodelivery WHERE product = ? ORDER BY id LIMIT 1`, product,
	).Scan(&id, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM autodelivery WHERE id = ?`, id)
	if err != nil {
		return "", false, err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return "", false, nil
	}
	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *sqliteStore) CountStock(ctx context.Context, product string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM autodelivery WHERE product = ?`, product).Scan(&n)
	return n, err
}

func (s *sqliteStore) ListStock(ctx context.Context) ([]ProductCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product, COUNT(*) FROM autodelivery GROUP BY product ORDER BY product`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProductCounts(rows)
}

func (s *sqliteStore) DeleteStock(ctx context.Context, product string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM autodelivery WHERE product = ?`, product)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanProductCounts(rows *sql.Rows) ([]ProductCount, error) {
	out := []ProductCount{}
	for rows.Next() {
		var pc ProductCount
		if err := rows.Scan(&pc.Product, &pc.Count); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}
