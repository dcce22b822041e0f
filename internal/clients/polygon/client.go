// Package polygon provides the Polygon.io market data client: daily and
// weekly aggregates, snapshots and ticker details, throttled by a
// plan-sized token bucket.
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/domain"
)

// Timespans accepted by Aggregates.
const (
	TimespanDay  = "day"
	TimespanWeek = "week"
)

// rateLimitBackoff is how long to wait after a 429 before the single retry.
const rateLimitBackoff = 60 * time.Second

// Client is a Polygon.io REST client.
type Client struct {
	apiKey  string
	plan    string
	baseURL string
	client  *http.Client
	limiter *Limiter
	log     zerolog.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// NewClient creates a Polygon client for the given plan.
func NewClient(apiKey, plan string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		plan:    plan,
		baseURL: "https://api.polygon.io",
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: NewLimiter(plan),
		log:     log.With().Str("client", "polygon").Logger(),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Limiter exposes the token bucket, so batch orchestration can share it.
func (c *Client) Limiter() *Limiter {
	return c.limiter
}

// BatchSize returns how many symbols may be fetched concurrently on the
// current plan.
func (c *Client) BatchSize() int {
	switch c.plan {
	case "starter":
		return 10
	case "developer", "advanced":
		return 50
	default:
		return 1
	}
}

// ClampEnd caps a requested end date to what the API can serve:
// daily data for today only becomes available after the US close
// (22:00 local), weekly data trails by a week.
func (c *Client) ClampEnd(end time.Time, timespan string) time.Time {
	now := c.now()

	switch timespan {
	case TimespanWeek:
		limit := now.AddDate(0, 0, -7)
		if end.After(limit) {
			return limit
		}
	default:
		limit := now
		if now.Hour() < 22 {
			limit = now.AddDate(0, 0, -1)
		}
		limit = midnight(limit)
		if end.After(limit) {
			return limit
		}
	}
	return end
}

// aggsResponse mirrors the /v2/aggs payload.
type aggsResponse struct {
	Status  string `json:"status"`
	Results []struct {
		T int64   `json:"t"` // epoch millis
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
	} `json:"results"`
}

// Aggregates fetches adjusted bars for a symbol. The end date is clamped
// per ClampEnd. A 429 response backs off for a minute and retries once.
func (c *Client) Aggregates(ctx context.Context, symbol string, start, end time.Time, timespan string) ([]domain.Bar, error) {
	end = c.ClampEnd(end, timespan)
	if start.After(end) {
		return nil, nil
	}

	url := fmt.Sprintf(
		"%s/v2/aggs/ticker/%s/range/1/%s/%s/%s?adjusted=true&sort=asc&limit=50000&apiKey=%s",
		c.baseURL, symbol, timespan,
		start.Format("2006-01-02"), end.Format("2006-01-02"),
		c.apiKey,
	)

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("aggregates request for %s failed: %w", symbol, err)
	}

	var parsed aggsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse aggregates for %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		bars = append(bars, domain.Bar{
			Timestamp: midnight(time.UnixMilli(r.T).UTC()),
			Symbol:    symbol,
			Open:      r.O,
			High:      r.H,
			Low:       r.L,
			Close:     r.C,
			Volume:    r.V,
		})
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("bars", len(bars)).
		Str("timespan", timespan).
		Msg("Fetched aggregates")
	return bars, nil
}

// snapshotResponse mirrors the single-ticker snapshot payload.
type snapshotResponse struct {
	Ticker struct {
		LastTrade struct {
			P float64 `json:"p"`
		} `json:"lastTrade"`
		Min struct {
			C float64 `json:"c"`
		} `json:"min"`
		Day struct {
			C float64 `json:"c"`
		} `json:"day"`
		PrevDay struct {
			C float64 `json:"c"`
		} `json:"prevDay"`
	} `json:"ticker"`
}

// LatestSnapshot returns the most recent price for a symbol. The price is
// taken from the first populated field in the order last trade, latest
// minute bar, day bar, previous day bar.
func (c *Client) LatestSnapshot(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf(
		"%s/v2/snapshot/locale/us/markets/stocks/tickers/%s?apiKey=%s",
		c.baseURL, symbol, c.apiKey,
	)

	body, err := c.get(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("snapshot request for %s failed: %w", symbol, err)
	}

	var parsed snapshotResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse snapshot for %s: %w", symbol, err)
	}

	t := parsed.Ticker
	for _, price := range []float64{t.LastTrade.P, t.Min.C, t.Day.C, t.PrevDay.C} {
		if price > 0 {
			return price, nil
		}
	}
	return 0, fmt.Errorf("no price in snapshot for %s", symbol)
}

// TickerDetails holds reference data for a symbol.
type TickerDetails struct {
	Ticker      string `json:"ticker"`
	Name        string `json:"name"`
	Market      string `json:"market"`
	Type        string `json:"type"`
	SICCode     string `json:"sic_code"`
	Description string `json:"sic_description"`
}

// GetTickerDetails fetches reference data for a symbol.
func (c *Client) GetTickerDetails(ctx context.Context, symbol string) (*TickerDetails, error) {
	url := fmt.Sprintf("%s/v3/reference/tickers/%s?apiKey=%s", c.baseURL, symbol, c.apiKey)

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("ticker details request for %s failed: %w", symbol, err)
	}

	var parsed struct {
		Results TickerDetails `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse ticker details for %s: %w", symbol, err)
	}
	return &parsed.Results, nil
}

// ValidateBars checks fetched bars for structural problems: negative
// prices or highs below lows.
func ValidateBars(bars []domain.Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("no bars")
	}
	for _, b := range bars {
		if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 {
			return fmt.Errorf("negative price in bar %s %s", b.Symbol, b.Timestamp.Format("2006-01-02"))
		}
		if b.High < b.Low {
			return fmt.Errorf("high below low in bar %s %s", b.Symbol, b.Timestamp.Format("2006-01-02"))
		}
	}
	return nil
}

// get performs a rate-limited GET with single-retry 429 handling.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	body, status, err := c.doOnce(ctx, url)
	if err != nil {
		return nil, err
	}
	if status == http.StatusTooManyRequests {
		c.log.Warn().Dur("backoff", rateLimitBackoff).Msg("Rate limited, backing off")
		c.sleep(rateLimitBackoff)

		body, status, err = c.doOnce(ctx, url)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	return body, nil
}

func (c *Client) doOnce(ctx context.Context, url string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
