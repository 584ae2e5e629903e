package models

import "time"

// Event types recorded in the escalation journal.
const (
	EventEnqueued     = "enqueued"
	EventAssigned     = "assigned"
	EventResolved     = "resolved"
	EventClosed       = "closed"
	EventNotifyFailed = "notify_failed"
	EventAgentStatus  = "agent_status"
)

// EscalationEvent is one lifecycle record in the journal.
type EscalationEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	QueryID   string    `gorm:"size:64;index" json:"query_id,omitempty"`
	AgentID   string    `gorm:"size:64;index" json:"agent_id,omitempty"`
	Type      string    `gorm:"size:32;index" json:"type"`
	Reason    string    `gorm:"size:32" json:"reason,omitempty"`
	Priority  int       `json:"priority,omitempty"`
	Detail    string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
