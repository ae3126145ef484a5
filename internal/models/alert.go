package models

import "time"

// Alert types and conditions.
const (
	AlertTypePrice     = "price"
	AlertTypeIndicator = "indicator"

	PriceAbove = "above"
	PriceBelow = "below"

	IndicatorAbove        = "above"
	IndicatorBelow        = "below"
	IndicatorCrossesAbove = "crosses_above"
	IndicatorCrossesBelow = "crosses_below"
)

var knownIndicators = map[string]struct{}{
	"RSI":            {},
	"MACD":           {},
	"MACD_crossover": {},
	"MA_50":          {},
	"MA_200":         {},
}

func ValidIndicator(name string) bool {
	_, ok := knownIndicators[name]
	return ok
}

// Alert is a user-defined trigger persisted until deleted or terminal.
type Alert struct {
	ID        string `gorm:"primaryKey;type:text" json:"id"`
	Symbol    string `gorm:"type:text;not null;index" json:"symbol"`
	AlertType string `gorm:"type:text;not null" json:"alert_type"`

	PriceThreshold *float64 `gorm:"type:numeric" json:"price_threshold,omitempty"`
	PriceCondition string   `gorm:"type:text" json:"price_condition,omitempty"`

	IndicatorName      string   `gorm:"type:text" json:"indicator_name,omitempty"`
	IndicatorCondition string   `gorm:"type:text" json:"indicator_condition,omitempty"`
	IndicatorValue     *float64 `gorm:"type:numeric" json:"indicator_value,omitempty"`

	Enabled     bool       `gorm:"not null;default:true" json:"enabled"`
	Triggered   bool       `gorm:"not null;default:false" json:"triggered"`
	TriggeredAt *time.Time `gorm:"type:timestamptz" json:"triggered_at,omitempty"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"type:timestamptz;not null" json:"updated_at"`

	// PrevIndicatorValue holds the last evaluated indicator reading so crossing
	// conditions can compare two consecutive ticks.
	PrevIndicatorValue *float64 `gorm:"type:numeric" json:"-"`
}

func (Alert) TableName() string { return "alerts" }
