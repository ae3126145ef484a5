package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/config"
	"marketpulse/internal/models"
)

// Adapter normalizes exchange access: tickers, OHLCV, symbol canonicalization.
// All downstream components consume the canonical BASE/QUOTE form.
type Adapter struct {
	HTTP   *http.Client
	Logger *zap.Logger
	Config config.ExchangeConfig
}

func NewAdapter(cfg config.ExchangeConfig, logger *zap.Logger) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		HTTP:   &http.Client{Timeout: timeout},
		Logger: logger,
		Config: cfg,
	}
}

// Canonicalize rewrites any input lacking a "/" separator to BASE/QUOTE.
// Inputs already containing "/" pass through unchanged.
func (a *Adapter) Canonicalize(symbol string) string {
	quote := a.Config.QuoteAsset
	if quote == "" {
		quote = "USDT"
	}
	return Canonicalize(symbol, quote)
}

func Canonicalize(symbol, quote string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return s
	}
	if strings.Contains(s, "/") {
		return s
	}
	return s + "/" + strings.ToUpper(quote)
}

// exchangeSymbol flattens BTC/USDT to the provider's BTCUSDT form.
func exchangeSymbol(canonical string) string {
	return strings.ReplaceAll(canonical, "/", "")
}

func (a *Adapter) Ticker(ctx context.Context, symbol string) (*models.Ticker, error) {
	canonical := a.Canonicalize(symbol)
	q := url.Values{}
	q.Set("symbol", exchangeSymbol(canonical))

	var parsed struct {
		LastPrice string `json:"lastPrice"`
		BidPrice  string `json:"bidPrice"`
		AskPrice  string `json:"askPrice"`
		Volume    string `json:"volume"`
		CloseTime int64  `json:"closeTime"`
	}
	if err := a.getJSON(ctx, "/api/v3/ticker/24hr", q, &parsed); err != nil {
		return nil, err
	}

	last, ok := atofSafe(parsed.LastPrice)
	if !ok || last <= 0 {
		return nil, fmt.Errorf("ticker %s: invalid last price %q", canonical, parsed.LastPrice)
	}
	bid, _ := atofSafe(parsed.BidPrice)
	ask, _ := atofSafe(parsed.AskPrice)
	vol, _ := atofSafe(parsed.Volume)
	ts := time.Now().UTC()
	if parsed.CloseTime > 0 {
		ts = time.UnixMilli(parsed.CloseTime).UTC()
	}
	return &models.Ticker{
		Symbol:    canonical,
		Last:      last,
		Bid:       bid,
		Ask:       ask,
		Volume:    vol,
		Timestamp: ts,
	}, nil
}

func (a *Adapter) OHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	canonical := a.Canonicalize(symbol)
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{}
	q.Set("symbol", exchangeSymbol(canonical))
	q.Set("interval", timeframe)
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]any
	if err := a.getJSON(ctx, "/api/v3/klines", q, &rows); err != nil {
		return nil, err
	}

	out := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		// Kline rows: [openTime, open, high, low, close, volume, ...]
		if len(row) < 6 {
			continue
		}
		openTime, ok := row[0].(float64)
		if !ok {
			continue
		}
		c := models.Candle{OpenTime: time.UnixMilli(int64(openTime)).UTC()}
		var bad bool
		for i, dst := range []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
			s, ok := row[i+1].(string)
			if !ok {
				bad = true
				break
			}
			v, ok := atofSafe(s)
			if !ok {
				bad = true
				break
			}
			*dst = v
		}
		if bad {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// getJSON performs a GET under the retry policy: capped exponential backoff,
// initial 1s, x2, max 30s, up to 5 attempts. Client errors other than rate
// limits are not retried.
func (a *Adapter) getJSON(ctx context.Context, path string, q url.Values, dst any) error {
	endpoint := strings.TrimRight(a.Config.BaseURL, "/") + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	initial := a.Config.RetryInitial
	if initial <= 0 {
		initial = time.Second
	}
	maxDelay := a.Config.RetryMax
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	attempts := a.Config.RetryLimit
	if attempts <= 0 {
		attempts = 5
	}

	delay := initial
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		}

		err := a.doOnce(ctx, endpoint, dst)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		if a.Logger != nil {
			a.Logger.Debug("exchange request retrying",
				zap.String("endpoint", path),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
		}
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, lastErr)
}

func (a *Adapter) doOnce(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := a.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return fmt.Errorf("http %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		// Binance reports unknown pairs as 400 with code -1121.
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil {
			if apiErr.Code == -1121 || strings.Contains(strings.ToLower(apiErr.Msg), "invalid symbol") {
				return ErrUnknownSymbol
			}
			return fmt.Errorf("http %d: %s", resp.StatusCode, apiErr.Msg)
		}
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrUnknownSymbol):
		return false
	case errors.Is(err, ErrRateLimited):
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	// Network errors and 5xx fall through here.
	return true
}

func atofSafe(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
