package models

import "time"

// SourceState is the per-source polling cursor persisted to the snapshot file
// so a restart replays as few provider items as possible.
type SourceState struct {
	LastSeenID    string            `json:"last_seen_id,omitempty"`
	SeenIDs       []string          `json:"seen_ids,omitempty"`
	LastPollAt    *time.Time        `json:"last_poll_at,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	ProviderState map[string]string `json:"provider_state,omitempty"`
}

// SourceHealth is the live status surfaced at GET /system/status.
type SourceHealth struct {
	Name       string     `json:"name"`
	SourceType string     `json:"source_type"`
	Running    bool       `json:"running"`
	Status     string     `json:"status"`
	LastPollAt *time.Time `json:"last_poll_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	Interval   string     `json:"poll_interval,omitempty"`
}
