package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "sellerbot/pkg/logx"

	_ "github.com/lib/pq"
)

const (
	postgresStockTable   = "sellerbot_autodelivery"
	postgresKeySetsTable = "sellerbot_keysets"
	postgresInitTimeout  = 10 * time.Second
)

// postgresStore lets several bot processes share one stock table. Pops lock
// the oldest row with SKIP LOCKED, so concurrent consumers never receive the
// same value.
type postgresStore struct {
	db  *sql.DB
	log logx.Logger

	stock   string
	keysets string
}

func openPostgres(cfg Config, log logx.Logger) (Ledger, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	st := &postgresStore{
		db:      db,
		log:     log,
		stock:   postgresQuoteIdentifier(postgresStockTable),
		keysets: postgresQuoteIdentifier(postgresKeySetsTable),
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresInitTimeout)
	defer cancel()
	if err := st.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return st, nil
}

func (s *postgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				product TEXT NOT NULL,
				value TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, s.stock),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (product, id)`,
			postgresQuoteIdentifier(postgresStockTable+"_product_idx"), s.stock),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				name TEXT PRIMARY KEY,
				data TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, s.keysets),
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *postgresStore) LoadKeys(ctx context.Context, set string) ([]string, error) {
	var data string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE name = $1`, s.keysets), set).Scan(&data)
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

func (s *postgresStore) ReplaceKeys(ctx context.Context, set string, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	b, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (name, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`, s.keysets), set, string(b))
	return err
}

func (s *postgresStore) AppendStock(ctx context.Context, product string, values []string, at time.Time) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (product, value, created_at) VALUES ($1, $2, $3)`, s.stock))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, product, v, at.UTC()); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(values), nil
}

func (s *postgresStore) PopStock(ctx context.Context, product string) (string, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id    int64
		value string
	)
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, value FROM %s
		WHERE product = $1
		ORDER BY id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, s.stock), product).Scan(&id, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.stock), id); err != nil {
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *postgresStore) CountStock(ctx context.Context, product string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE product = $1`, s.stock), product).Scan(&n)
	return n, err
}

func (s *postgresStore) ListStock(ctx context.Context) ([]ProductCount, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT product, COUNT(*) FROM %s GROUP BY product ORDER BY product`, s.stock))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProductCounts(rows)
}

func (s *postgresStore) DeleteStock(ctx context.Context, product string) (int, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE product = $1`, s.stock), product)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
