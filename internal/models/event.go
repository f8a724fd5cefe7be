package models

import "time"

// Event types recorded in the log.
const (
	EventCommand    = "COMMAND"
	EventModeChange = "MODE_CHANGE"
	EventPollError  = "POLL_ERROR"
	EventAuth       = "AUTH"
	EventDiscovery  = "DISCOVERY"
)

// PurifierEvent is a single log entry.
type PurifierEvent struct {
	EventID     string    `json:"event_id"`
	Serial      string    `json:"serial,omitempty"` // empty for account-level events
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // COMMAND | MODE_CHANGE | POLL_ERROR | AUTH | DISCOVERY
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
