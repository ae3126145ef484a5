package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Notification types.
const (
	TypeCombinedSignal     = "combined_signal"
	TypeTechnicalBreakout  = "technical_breakout"
	TypeSocialSurge        = "social_surge"
	TypeNewsEvent          = "news_event"
	TypeRiskAlert          = "risk_alert"
	TypeSystemStatus       = "system_status"
	TypeTradeExecuted      = "trade_executed"
	TypeUserActionRequired = "user_action_required"
)

// Notification sources.
const (
	SourceTechnical = "technical"
	SourceTwitter   = "twitter"
	SourceNews      = "news"
	SourceCombined  = "combined"
	SourceSystem    = "system"
	SourceUser      = "user"
)

// Priority levels, ordered critical > high > medium > low > info.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
	PriorityInfo     Priority = "info"
)

var priorityRank = map[Priority]int{
	PriorityCritical: 4,
	PriorityHigh:     3,
	PriorityMedium:   2,
	PriorityLow:      1,
	PriorityInfo:     0,
}

// Rank returns a comparable weight; higher means more urgent.
func (p Priority) Rank() int { return priorityRank[p] }

func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// SummaryWordBudget is the maximum word count allowed for the AI summary of a
// notification at this priority.
func (p Priority) SummaryWordBudget() int {
	switch p {
	case PriorityCritical:
		return 15
	case PriorityHigh:
		return 20
	case PriorityMedium:
		return 25
	default:
		return 30
	}
}

// Quick-action tokens a notification may carry. Unknown tokens are rejected at
// validation time; dispatch is keyed by token, never by generated code.
const (
	ActionApprove       = "approve"
	ActionReject        = "reject"
	ActionDismiss       = "dismiss"
	ActionClosePosition = "close_position"
)

var knownActions = map[string]struct{}{
	ActionApprove:       {},
	ActionReject:        {},
	ActionDismiss:       {},
	ActionClosePosition: {},
}

func ValidAction(token string) bool {
	_, ok := knownActions[token]
	return ok
}

// Notification is the unit of delivery. Immutable once appended except for the
// read/responded status fields and the summary patch.
type Notification struct {
	ID                string         `json:"id"`
	Type              string         `json:"type"`
	Priority          Priority       `json:"priority"`
	Source            string         `json:"source"`
	Title             string         `json:"title"`
	Message           string         `json:"message"`
	SummarizedMessage string         `json:"summarized_message,omitempty"`
	Symbol            string         `json:"symbol,omitempty"`
	ConfidenceScore   *float64       `json:"confidence_score,omitempty"`
	UrgencyScore      *float64       `json:"urgency_score,omitempty"`
	PromiseScore      *float64       `json:"promise_score,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Actions           []string       `json:"actions,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	Read              bool           `json:"read"`
	Responded         bool           `json:"responded"`
	ResponseAction    string         `json:"response_action,omitempty"`

	// ExternalID is the provider-side identifier used to derive DedupKey.
	ExternalID string `json:"external_id,omitempty"`
	DedupKey   string `json:"dedup_key,omitempty"`
}

// ComputeDedupKey derives the stable duplicate-rejection key: source plus
// external ID when present, otherwise a hash of the normalized content.
func (n *Notification) ComputeDedupKey() string {
	if n.ExternalID != "" {
		return n.Source + ":" + n.ExternalID
	}
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(n.Type + "|" + n.Title + "|" + n.Message))))
	return n.Source + ":" + hex.EncodeToString(h[:16])
}

func ValidType(t string) bool {
	switch t {
	case TypeCombinedSignal, TypeTechnicalBreakout, TypeSocialSurge, TypeNewsEvent,
		TypeRiskAlert, TypeSystemStatus, TypeTradeExecuted, TypeUserActionRequired:
		return true
	}
	return false
}

func ValidSource(s string) bool {
	switch s {
	case SourceTechnical, SourceTwitter, SourceNews, SourceCombined, SourceSystem, SourceUser:
		return true
	}
	return false
}
