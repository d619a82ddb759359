package audit

import "time"

// EventType constants for audit log entries.
const (
	EventTagAdd       = "TAG_ADD"
	EventTagRemove    = "TAG_REMOVE"
	EventJobSubmit    = "JOB_SUBMIT"
	EventRepairDenied = "REPAIR_DENIED"
	EventStateChange  = "STATE_CHANGE"
)

// AuditEntry represents a single audit log entry. One reconciliation
// pass shares a RunID across all of its entries.
type AuditEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id"`
	EventType  string    `json:"event_type"`
	Instance   string    `json:"instance,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	JobIDs     []int64   `json:"job_ids,omitempty"`
	RepairType string    `json:"repair_type,omitempty"`
	FromState  string    `json:"from_state,omitempty"`
	ToState    string    `json:"to_state,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	DryRun     bool      `json:"dry_run,omitempty"`
	EntryHash  string    `json:"entry_hash"`
}
