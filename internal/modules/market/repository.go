// Package market provides the bar store for daily OHLCV market data.
//
// Bars are stored in a dedicated SQLite database keyed by
// (timestamp, symbol). Writes are idempotent: upserting a date range
// replaces whatever was there before. One store instance exists per
// database path, so every module in the process shares the same handle.
package market

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/database"
	"github.com/aristath/compass/internal/domain"
)

// timestampLayout is how bar timestamps are stored. RFC 3339 UTC strings
// sort lexicographically in chronological order.
const timestampLayout = "2006-01-02T15:04:05Z"

var (
	storeMu sync.Mutex
	stores  = map[string]*Store{}
)

// Store is the market data repository.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// Open returns the store for the given database path, creating and
// migrating it on first use. Subsequent calls with the same path return
// the same instance.
func Open(path string, log zerolog.Logger) (*Store, error) {
	storeMu.Lock()
	defer storeMu.Unlock()

	if s, ok := stores[path]; ok {
		return s, nil
	}

	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileStandard,
		Name:    "market",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open market database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate market database: %w", err)
	}

	s := &Store{
		db:  db,
		log: log.With().Str("repository", "market").Logger(),
	}
	stores[path] = s
	return s, nil
}

// NewStore wraps an already-open database. Used by tests; production code
// goes through Open.
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("repository", "market").Logger()}
}

// Close closes the underlying database and forgets the singleton.
func (s *Store) Close() error {
	storeMu.Lock()
	for path, st := range stores {
		if st == s {
			delete(stores, path)
		}
	}
	storeMu.Unlock()
	return s.db.Close()
}

// DB exposes the underlying database handle (health checks, backups).
func (s *Store) DB() *database.DB {
	return s.db
}

// UpsertBars writes bars for a symbol, replacing any existing rows for the
// same dates. Delete and insert run in a single transaction so readers
// never observe a half-written range.
func (s *Store) UpsertBars(symbol string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	err := database.WithBusyRetry(func() error {
		return database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
			del, err := tx.Prepare("DELETE FROM market_data WHERE timestamp = ? AND symbol = ?")
			if err != nil {
				return err
			}
			defer del.Close()

			ins, err := tx.Prepare(`
				INSERT INTO market_data (timestamp, symbol, open, high, low, close, volume)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`)
			if err != nil {
				return err
			}
			defer ins.Close()

			for _, bar := range bars {
				ts := bar.Timestamp.UTC().Format(timestampLayout)
				if _, err := del.Exec(ts, symbol); err != nil {
					return err
				}
				if _, err := ins.Exec(ts, symbol, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d bars for %s: %w", len(bars), symbol, err)
	}

	return nil
}

// GetBars returns bars for a symbol in ascending order. Nil bounds leave
// that side of the range open; set bounds are inclusive.
// Lock contention after retries yields an empty result, not an error.
func (s *Store) GetBars(symbol string, start, end *time.Time) ([]domain.Bar, error) {
	query := "SELECT timestamp, symbol, open, high, low, close, volume FROM market_data WHERE symbol = ?"
	args := []interface{}{symbol}

	if start != nil {
		query += " AND timestamp >= ?"
		args = append(args, start.UTC().Format(timestampLayout))
	}
	if end != nil {
		query += " AND timestamp <= ?"
		args = append(args, end.UTC().Format(timestampLayout))
	}
	query += " ORDER BY timestamp ASC"

	return s.queryBars(query, args...)
}

// BarsUntil returns the bars needed to evaluate a symbol as of end:
// everything in [end - lookbackDays, end], end-exclusive of the next day.
func (s *Store) BarsUntil(symbol string, end time.Time, lookbackDays int) ([]domain.Bar, error) {
	cutoff := end.AddDate(0, 0, -lookbackDays)
	endNext := end.AddDate(0, 0, 1)

	return s.queryBars(`
		SELECT timestamp, symbol, open, high, low, close, volume
		FROM market_data
		WHERE symbol = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, symbol, cutoff.UTC().Format(timestampLayout), endNext.UTC().Format(timestampLayout))
}

// BarsForDate returns the bar for each symbol on an exact date, keyed by
// symbol. Symbols with no bar that day are simply absent.
func (s *Store) BarsForDate(symbols []string, date time.Time) (map[string]domain.Bar, error) {
	if len(symbols) == 0 {
		return map[string]domain.Bar{}, nil
	}

	placeholders := strings.Repeat("?,", len(symbols))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(symbols)+1)
	args = append(args, date.UTC().Format(timestampLayout))
	for _, sym := range symbols {
		args = append(args, sym)
	}

	bars, err := s.queryBars(fmt.Sprintf(`
		SELECT timestamp, symbol, open, high, low, close, volume
		FROM market_data
		WHERE timestamp = ? AND symbol IN (%s)
	`, placeholders), args...)
	if err != nil {
		return nil, err
	}

	result := make(map[string]domain.Bar, len(bars))
	for _, bar := range bars {
		result[bar.Symbol] = bar
	}
	return result, nil
}

// LastTimestamp returns the most recent bar timestamp for a symbol, or nil
// when the symbol has no data.
func (s *Store) LastTimestamp(symbol string) (*time.Time, error) {
	var raw sql.NullString
	err := database.WithBusyRetry(func() error {
		return s.db.QueryRow(
			"SELECT MAX(timestamp) FROM market_data WHERE symbol = ?", symbol,
		).Scan(&raw)
	})
	if err != nil {
		if database.IsBusy(err) {
			s.log.Warn().Str("symbol", symbol).Msg("Market store busy, treating as no data")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last timestamp for %s: %w", symbol, err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	ts, err := time.Parse(timestampLayout, raw.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp %q for %s: %w", raw.String, symbol, err)
	}
	return &ts, nil
}

// AllSymbols returns every symbol present in the store, sorted.
func (s *Store) AllSymbols() ([]string, error) {
	var symbols []string
	err := database.WithBusyRetry(func() error {
		rows, err := s.db.Query("SELECT DISTINCT symbol FROM market_data")
		if err != nil {
			return err
		}
		defer rows.Close()

		symbols = symbols[:0]
		for rows.Next() {
			var sym string
			if err := rows.Scan(&sym); err != nil {
				return err
			}
			symbols = append(symbols, sym)
		}
		return rows.Err()
	})
	if err != nil {
		if database.IsBusy(err) {
			s.log.Warn().Msg("Market store busy, returning empty symbol list")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}

	sort.Strings(symbols)
	return symbols, nil
}

// queryBars runs a bar query with the busy-retry policy. Contention after
// the final retry degrades to an empty result.
func (s *Store) queryBars(query string, args ...interface{}) ([]domain.Bar, error) {
	var bars []domain.Bar

	err := database.WithBusyRetry(func() error {
		rows, err := s.db.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		bars = bars[:0]
		for rows.Next() {
			var raw string
			var bar domain.Bar
			if err := rows.Scan(&raw, &bar.Symbol, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
				return err
			}
			ts, err := time.Parse(timestampLayout, raw)
			if err != nil {
				return fmt.Errorf("failed to parse timestamp %q: %w", raw, err)
			}
			bar.Timestamp = ts
			bars = append(bars, bar)
		}
		return rows.Err()
	})
	if err != nil {
		if database.IsBusy(err) {
			s.log.Warn().Msg("Market store busy, returning empty bar set")
			return nil, nil
		}
		return nil, fmt.Errorf("bar query failed: %w", err)
	}

	return bars, nil
}
