package database

import (
	"database/sql"
	"fmt"
)

// schemas maps database names to their DDL.
// Each schema is the single source of truth for that database.
var schemas = map[string]string{
	"market": marketSchema,
	"user":   userSchema,
}

// marketSchema holds daily OHLCV bars keyed by (timestamp, symbol).
const marketSchema = `
CREATE TABLE IF NOT EXISTS market_data (
    timestamp TIMESTAMP NOT NULL,
    symbol    TEXT NOT NULL,
    open      REAL,
    high      REAL,
    low       REAL,
    close     REAL,
    volume    REAL,
    PRIMARY KEY (timestamp, symbol)
);

CREATE INDEX IF NOT EXISTS idx_market_symbol_ts ON market_data(symbol, timestamp);
CREATE INDEX IF NOT EXISTS idx_market_ts ON market_data(timestamp);
`

// userSchema holds settings, the trade journal, signal history, portfolio
// plans and alert deduplication state.
const userSchema = `
CREATE TABLE IF NOT EXISTS user_settings (
    key        TEXT PRIMARY KEY,
    value      TEXT,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trading_journal (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol      TEXT NOT NULL,
    strategy    TEXT,
    entry_date  TIMESTAMP,
    entry_price REAL,
    quantity    INTEGER,
    stop_loss   REAL,
    target_price REAL,
    exit_date   TIMESTAMP,
    exit_price  REAL,
    exit_reason TEXT,
    notes       TEXT,
    created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS signal_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol      TEXT NOT NULL,
    strategy    TEXT,
    score       REAL,
    entry_price REAL,
    stop_loss   REAL,
    target_price REAL,
    signal_date TIMESTAMP,
    created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS portfolio_plans (
    id         TEXT PRIMARY KEY,
    as_of      TIMESTAMP NOT NULL,
    regime     TEXT,
    payload    BLOB,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS price_alert_sent (
    symbol     TEXT NOT NULL,
    level_type TEXT NOT NULL,
    sent_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (symbol, level_type)
);
`

// columnMigrations lists columns added after the initial schema shipped.
// Each is applied only when missing, which keeps Migrate idempotent.
var columnMigrations = map[string][]columnMigration{
	"user": {
		{"trading_journal", "current_stop_loss", "REAL"},
		{"trading_journal", "updated_at", "TIMESTAMP"},
		{"trading_journal", "highest_price", "REAL"},
		{"trading_journal", "regime", "TEXT"},
		{"trading_journal", "original_quantity", "INTEGER"},
		{"trading_journal", "atr", "REAL"},
		{"trading_journal", "trailing_active", "INTEGER"},
		{"trading_journal", "breakeven_active", "INTEGER"},
		{"trading_journal", "tp1_hit", "INTEGER"},
		{"trading_journal", "tp1_pnl", "REAL"},
	},
}

type columnMigration struct {
	table  string
	column string
	kind   string
}

// migrateColumns applies guarded ALTER TABLE ADD COLUMN migrations.
func migrateColumns(conn *sql.DB, name string) error {
	for _, m := range columnMigrations[name] {
		exists, err := columnExists(conn, m.table, m.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.kind)
		if _, err := conn.Exec(query); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", m.table, m.column, err)
		}
	}
	return nil
}

// columnExists checks pragma table_info for a column.
func columnExists(conn *sql.DB, table, column string) (bool, error) {
	rows, err := conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, kind string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &kind, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
