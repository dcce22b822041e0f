// Package ingestion orchestrates market data updates: watchlist loading,
// incremental date ranges, retry with backoff and plan-sized batching.
package ingestion

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/clients/polygon"
	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/modules/market"
)

const (
	maxRetries  = 4
	backoffBase = 2 * time.Second // doubled per attempt: 2s, 4s, 8s, 16s
)

// Provider is the slice of the data client the updater needs.
type Provider interface {
	Aggregates(ctx context.Context, symbol string, start, end time.Time, timespan string) ([]domain.Bar, error)
	BatchSize() int
}

// Updater orchestrates data ingestion for the watchlist.
type Updater struct {
	provider        Provider
	store           *market.Store
	watchlistPath   string
	historicalYears int
	log             zerolog.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// NewUpdater creates an ingestion orchestrator.
func NewUpdater(provider Provider, store *market.Store, watchlistPath string, historicalYears int, log zerolog.Logger) *Updater {
	return &Updater{
		provider:        provider,
		store:           store,
		watchlistPath:   watchlistPath,
		historicalYears: historicalYears,
		log:             log.With().Str("component", "ingestion").Logger(),
		now:             time.Now,
		sleep:           time.Sleep,
	}
}

// LoadWatchlist reads symbols from the watchlist file: one per line,
// blanks and '#' comments skipped, everything uppercased.
func (u *Updater) LoadWatchlist() ([]string, error) {
	f, err := os.Open(u.watchlistPath)
	if err != nil {
		if os.IsNotExist(err) {
			u.log.Warn().Str("path", u.watchlistPath).Msg("Watchlist file not found")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open watchlist: %w", err)
	}
	defer f.Close()

	var symbols []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		symbols = append(symbols, strings.ToUpper(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read watchlist: %w", err)
	}
	return symbols, nil
}

// DateRange computes the fetch window for a symbol.
// End is today at midnight after the US close (22:00 local), otherwise
// yesterday. Start continues one day after the stored history, or reaches
// back the full historical depth for new symbols and forced downloads.
// Returns ok=false when the symbol is already up to date.
func (u *Updater) DateRange(symbol string, forceFull bool) (start, end time.Time, ok bool, err error) {
	now := u.now()
	if now.Hour() >= 22 {
		end = midnight(now)
	} else {
		end = midnight(now.AddDate(0, 0, -1))
	}

	if forceFull {
		start = end.AddDate(0, 0, -u.historicalYears*365)
		u.log.Info().
			Str("symbol", symbol).
			Int("years", u.historicalYears).
			Time("start", start).
			Msg("Forced full historical download")
		return start, end, true, nil
	}

	lastTS, err := u.store.LastTimestamp(symbol)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}

	if lastTS != nil {
		start = lastTS.AddDate(0, 0, 1)
		u.log.Info().Str("symbol", symbol).Time("start", start).Msg("Incremental update")
	} else {
		start = end.AddDate(0, 0, -u.historicalYears*365)
		u.log.Info().
			Str("symbol", symbol).
			Int("years", u.historicalYears).
			Time("start", start).
			Msg("Full historical download")
	}

	if start.After(end) {
		u.log.Info().Str("symbol", symbol).Msg("Already up to date")
		return start, end, false, nil
	}
	return start, end, true, nil
}

// UpdateSymbol updates one symbol. Returns true on success; failures are
// logged and reported as false rather than aborting the run.
func (u *Updater) UpdateSymbol(ctx context.Context, symbol string, forceFull bool) bool {
	start, end, ok, err := u.DateRange(symbol, forceFull)
	if err != nil {
		u.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to determine date range")
		return false
	}
	if !ok {
		return true
	}

	bars, err := u.fetchWithRetry(ctx, symbol, start, end)
	if err != nil {
		u.log.Error().Err(err).Str("symbol", symbol).Int("attempts", maxRetries).Msg("All fetch attempts failed")
		return false
	}
	if len(bars) == 0 {
		u.log.Warn().Str("symbol", symbol).Msg("No new data available")
		return false
	}

	if err := polygon.ValidateBars(bars); err != nil {
		u.log.Error().Err(err).Str("symbol", symbol).Msg("Invalid data format")
		return false
	}

	if err := u.store.UpsertBars(symbol, bars); err != nil {
		u.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to write bars")
		return false
	}

	u.log.Info().Str("symbol", symbol).Int("bars", len(bars)).Msg("Inserted bars")
	return true
}

// fetchWithRetry fetches with exponential backoff: 2s, 4s, 8s, 16s.
func (u *Updater) fetchWithRetry(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		bars, err := u.provider.Aggregates(ctx, symbol, start, end, polygon.TimespanDay)
		if err == nil {
			return bars, nil
		}
		lastErr = err

		wait := backoffBase << (attempt - 1)
		u.log.Warn().
			Err(err).
			Str("symbol", symbol).
			Int("attempt", attempt).
			Int("max_attempts", maxRetries).
			Dur("retry_in", wait).
			Msg("Fetch attempt failed")
		if attempt < maxRetries {
			u.sleep(wait)
		}
	}
	return nil, lastErr
}

// UpdateAll updates all given symbols (the watchlist when symbols is nil).
// The plan's batch size decides concurrency: one at a time on the free
// plan, batches of 10 or 50 on paid plans. Returns the success count.
func (u *Updater) UpdateAll(ctx context.Context, symbols []string, forceFull bool) (int, error) {
	if symbols == nil {
		var err error
		symbols, err = u.LoadWatchlist()
		if err != nil {
			return 0, err
		}
	}

	u.log.Info().Int("symbols", len(symbols)).Msg("Starting data update")

	batchSize := u.provider.BatchSize()
	successCount := 0

	if batchSize > 1 {
		totalBatches := (len(symbols) + batchSize - 1) / batchSize
		u.log.Info().
			Int("batch_size", batchSize).
			Int("batches", totalBatches).
			Msg("Using batch processing")

		for i := 0; i < len(symbols); i += batchSize {
			batch := symbols[i:min(i+batchSize, len(symbols))]
			batchNum := i/batchSize + 1
			u.log.Info().Int("batch", batchNum).Int("size", len(batch)).Msg("Processing batch")

			results := make([]bool, len(batch))
			var wg sync.WaitGroup
			for j, sym := range batch {
				wg.Add(1)
				go func(j int, sym string) {
					defer wg.Done()
					results[j] = u.UpdateSymbol(ctx, sym, forceFull)
				}(j, sym)
			}
			wg.Wait()

			batchSuccess := 0
			for _, ok := range results {
				if ok {
					batchSuccess++
					successCount++
				}
			}
			u.log.Info().
				Int("batch", batchNum).
				Int("updated", batchSuccess).
				Int("size", len(batch)).
				Msg("Batch complete")
		}
	} else {
		for i, sym := range symbols {
			u.log.Info().Str("symbol", sym).Int("n", i+1).Int("total", len(symbols)).Msg("Processing")
			if u.UpdateSymbol(ctx, sym, forceFull) {
				successCount++
			}
		}
	}

	u.log.Info().
		Int("updated", successCount).
		Int("total", len(symbols)).
		Msg("Update complete")
	return successCount, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
