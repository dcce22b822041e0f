// Package exchangerate provides currency exchange rate fetching and caching functionality.
package exchangerate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/modules/settings"
)

const (
	cacheKeyRate      = "cached_exchange_rate"
	cacheKeyTimestamp = "cached_exchange_rate_timestamp"
	cacheTTL          = 24 * time.Hour

	// fallbackRate is the last-resort USD to EUR rate when the API and the
	// cache are both unavailable.
	fallbackRate = 0.92
)

// Client fetches the USD to EUR rate from exchangerate-api.com with a
// settings-backed cache. The fallback chain is: fresh cache, API, stale
// cache, hardcoded rate - stale data beats no data.
type Client struct {
	baseURL      string
	client       *http.Client
	log          zerolog.Logger
	settingsRepo *settings.Repository
	now          func() time.Time
}

// NewClient creates a new exchangerate-api.com client.
// settingsRepo is optional - if nil, caching is disabled.
func NewClient(settingsRepo *settings.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:      "https://api.exchangerate-api.com/v4/latest",
		client:       &http.Client{Timeout: 10 * time.Second},
		log:          log.With().Str("client", "exchangerate-api").Logger(),
		settingsRepo: settingsRepo,
		now:          time.Now,
	}
}

// USDToEUR returns the USD to EUR rate. It never fails: when everything
// else is unavailable the hardcoded fallback rate is returned.
func (c *Client) USDToEUR() float64 {
	// Fresh cache first
	if rate, age, ok := c.cachedRate(); ok && age < cacheTTL {
		c.log.Debug().Float64("rate", rate).Dur("age", age).Msg("Cache hit")
		return rate
	}

	rate, err := c.fetch("USD", "EUR")
	if err == nil {
		c.storeCache(rate)
		return rate
	}

	// API failed - a stale cached rate is still better than a constant
	if rate, age, ok := c.cachedRate(); ok {
		c.log.Warn().
			Err(err).
			Float64("rate", rate).
			Dur("age", age).
			Msg("API failed, using stale cached rate")
		return rate
	}

	c.log.Warn().Err(err).Float64("rate", fallbackRate).Msg("API failed with no cache, using fallback rate")
	return fallbackRate
}

// fetch calls the API for a currency pair.
func (c *Client) fetch(fromCurrency, toCurrency string) (float64, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, fromCurrency)
	c.log.Debug().Str("url", url).Msg("Fetching rates")

	resp, err := c.client.Get(url)
	if err != nil {
		return 0, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}

	rate, exists := result.Rates[toCurrency]
	if !exists || rate <= 0 {
		return 0, fmt.Errorf("rate not found for %s->%s", fromCurrency, toCurrency)
	}

	c.log.Info().
		Str("from", fromCurrency).
		Str("to", toCurrency).
		Float64("rate", rate).
		Msg("Fetched rate")

	return rate, nil
}

// cachedRate reads the cached rate and its age from settings.
func (c *Client) cachedRate() (float64, time.Duration, bool) {
	if c.settingsRepo == nil {
		return 0, 0, false
	}

	rate, err := c.settingsRepo.GetFloat(cacheKeyRate, 0)
	if err != nil || rate <= 0 {
		return 0, 0, false
	}

	ts, err := c.settingsRepo.GetTime(cacheKeyTimestamp)
	if err != nil || ts.IsZero() {
		return 0, 0, false
	}

	return rate, c.now().Sub(ts), true
}

// storeCache writes the rate and timestamp to settings.
func (c *Client) storeCache(rate float64) {
	if c.settingsRepo == nil {
		return
	}
	if err := c.settingsRepo.SetFloat(cacheKeyRate, rate); err != nil {
		c.log.Warn().Err(err).Msg("Failed to cache exchange rate")
		return
	}
	if err := c.settingsRepo.SetTime(cacheKeyTimestamp, c.now()); err != nil {
		c.log.Warn().Err(err).Msg("Failed to cache exchange rate timestamp")
	}
}
