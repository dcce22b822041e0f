package exchangerate

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aristath/compass/internal/modules/settings"
)

func setupSettings(t *testing.T) *settings.Repository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE user_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	require.NoError(t, err)
	return settings.NewRepository(db, zerolog.Nop())
}

func testExchangeClient(t *testing.T, repo *settings.Repository, handler http.HandlerFunc) *Client {
	t.Helper()

	c := NewClient(repo, zerolog.Nop())
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		c.baseURL = srv.URL
	} else {
		// Unroutable: every fetch fails fast
		c.baseURL = "http://127.0.0.1:1"
		c.client = &http.Client{Timeout: 100 * time.Millisecond}
	}
	c.now = func() time.Time { return time.Date(2024, 8, 5, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestUSDToEURFetchesAndCaches(t *testing.T) {
	repo := setupSettings(t)
	calls := 0
	c := testExchangeClient(t, repo, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"rates": {"EUR": 0.91}}`))
	})

	assert.InDelta(t, 0.91, c.USDToEUR(), 1e-9)
	assert.Equal(t, 1, calls)

	// Second call is served from the fresh cache
	assert.InDelta(t, 0.91, c.USDToEUR(), 1e-9)
	assert.Equal(t, 1, calls)
}

func TestUSDToEURRefreshesExpiredCache(t *testing.T) {
	repo := setupSettings(t)
	c := testExchangeClient(t, repo, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates": {"EUR": 0.93}}`))
	})

	require.NoError(t, repo.SetFloat("cached_exchange_rate", 0.89))
	require.NoError(t, repo.SetTime("cached_exchange_rate_timestamp", c.now().Add(-25*time.Hour)))

	assert.InDelta(t, 0.93, c.USDToEUR(), 1e-9)
}

func TestUSDToEURStaleCacheBeatsFallback(t *testing.T) {
	repo := setupSettings(t)
	c := testExchangeClient(t, repo, nil)

	require.NoError(t, repo.SetFloat("cached_exchange_rate", 0.89))
	require.NoError(t, repo.SetTime("cached_exchange_rate_timestamp", c.now().Add(-48*time.Hour)))

	assert.InDelta(t, 0.89, c.USDToEUR(), 1e-9)
}

func TestUSDToEURFallbackWithoutCache(t *testing.T) {
	c := testExchangeClient(t, setupSettings(t), nil)
	assert.InDelta(t, fallbackRate, c.USDToEUR(), 1e-9)
}

func TestUSDToEURFallbackWithoutSettings(t *testing.T) {
	c := testExchangeClient(t, nil, nil)
	assert.InDelta(t, fallbackRate, c.USDToEUR(), 1e-9)
}

func TestFetchRejectsMissingRate(t *testing.T) {
	c := testExchangeClient(t, setupSettings(t), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates": {"GBP": 0.78}}`))
	})

	_, err := c.fetch("USD", "EUR")
	assert.Error(t, err)
}

func TestFetchRejectsBadStatus(t *testing.T) {
	c := testExchangeClient(t, setupSettings(t), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.fetch("USD", "EUR")
	assert.Error(t, err)
}
