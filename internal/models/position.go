package models

import "github.com/shopspring/decimal"

// Position sides.
const (
	SideLong  = "long"
	SideShort = "short"
)

// Position is read-only here; the trading engine owns its lifecycle.
type Position struct {
	ID              string          `json:"id"`
	Symbol          string          `json:"symbol"`
	Side            string          `json:"side"`
	Amount          decimal.Decimal `json:"amount"`
	EntryPrice      float64         `json:"entry_price"`
	CurrentPrice    float64         `json:"current_price"`
	PnL             decimal.Decimal `json:"pnl"`
	PnLPercent      float64         `json:"pnl_percent"`
	StopLoss        *float64        `json:"stop_loss,omitempty"`
	StopLossPercent *float64        `json:"stop_loss_percent,omitempty"`
	TrailingStop    *float64        `json:"trailing_stop,omitempty"`
}

// Balance is the trading engine account snapshot.
type Balance struct {
	Total     decimal.Decimal `json:"total"`
	Available decimal.Decimal `json:"available"`
	Currency  string          `json:"currency"`
}
