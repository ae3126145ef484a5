package trading

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"marketpulse/internal/config"
	"marketpulse/internal/models"
)

// Typed errors mirroring the trading engine's error codes. Handlers map these
// onto HTTP statuses; callers branch with errors.Is.
var (
	ErrInvalidInput        = errors.New("trading: invalid input")
	ErrNotFound            = errors.New("trading: not found")
	ErrInsufficientBalance = errors.New("trading: insufficient balance")
	ErrUpstreamUnavailable = errors.New("trading: engine unavailable")
)

// Client talks to the external trading engine over REST. It is a pure proxy:
// no order state is kept here.
type Client struct {
	HTTP   *http.Client
	Config config.TradingConfig
}

func NewClient(cfg config.TradingConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		HTTP:   &http.Client{Timeout: timeout},
		Config: cfg,
	}
}

// OpenRequest describes a position to open.
type OpenRequest struct {
	Symbol              string          `json:"symbol"`
	Side                string          `json:"side"`
	Amount              decimal.Decimal `json:"amount"`
	StopLossPercent     *float64        `json:"stop_loss_percent,omitempty"`
	TrailingStopPercent *float64        `json:"trailing_stop_percent,omitempty"`
}

// StopRequest updates the protective stop of an open position.
type StopRequest struct {
	StopLoss        *float64 `json:"stop_loss,omitempty"`
	StopLossPercent *float64 `json:"stop_loss_percent,omitempty"`
}

func (c *Client) GetPositions(ctx context.Context) ([]models.Position, error) {
	var out []models.Position
	if err := c.do(ctx, http.MethodGet, "/positions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBalance(ctx context.Context) (models.Balance, error) {
	var out models.Balance
	if err := c.do(ctx, http.MethodGet, "/balance", nil, &out); err != nil {
		return models.Balance{}, err
	}
	return out, nil
}

func (c *Client) OpenPosition(ctx context.Context, req OpenRequest) (models.Position, error) {
	var out models.Position
	if err := c.do(ctx, http.MethodPost, "/positions", req, &out); err != nil {
		return models.Position{}, err
	}
	return out, nil
}

func (c *Client) ClosePosition(ctx context.Context, id string) (models.Position, error) {
	var out models.Position
	path := "/positions/" + url.PathEscape(id) + "/close"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return models.Position{}, err
	}
	return out, nil
}

func (c *Client) SetStopLoss(ctx context.Context, id string, req StopRequest) (models.Position, error) {
	var out models.Position
	path := "/positions/" + url.PathEscape(id) + "/stop-loss"
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return models.Position{}, err
	}
	return out, nil
}

func (c *Client) SetTrailingStop(ctx context.Context, id string, percent float64) (models.Position, error) {
	var out models.Position
	path := "/positions/" + url.PathEscape(id) + "/trailing-stop"
	body := map[string]float64{"percent": percent}
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return models.Position{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	base := c.Config.BaseURL
	if base == "" {
		base = "http://127.0.0.1:8095"
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError maps the engine's {error_code, message} body onto typed errors.
// Unknown or malformed bodies fall back to the HTTP status class.
func decodeError(resp *http.Response) error {
	var payload struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(raw, &payload)

	msg := payload.Message
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	switch payload.ErrorCode {
	case "invalid_input":
		return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
	case "not_found":
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case "insufficient_balance":
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, msg)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrUpstreamUnavailable, msg)
	}
	return fmt.Errorf("trading: %s", msg)
}
