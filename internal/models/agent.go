package models

import (
	"fmt"
	"slices"
	"time"
)

// AgentStatus is the availability state of a human agent.
type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
	AgentOffline   AgentStatus = "offline"
	AgentOnBreak   AgentStatus = "break"
)

// AgentStatuses lists every agent status in display order.
var AgentStatuses = []AgentStatus{AgentAvailable, AgentBusy, AgentOffline, AgentOnBreak}

// ParseAgentStatus converts a status string into an AgentStatus.
func ParseAgentStatus(s string) (AgentStatus, error) {
	st := AgentStatus(s)
	if !slices.Contains(AgentStatuses, st) {
		return "", fmt.Errorf("models: unknown agent status %q", s)
	}
	return st, nil
}

// Agent is a human agent who can take escalated queries.
type Agent struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email,omitempty"`
	Phone        string      `json:"phone,omitempty"`
	Expertise    []string    `json:"expertise"`
	Languages    []string    `json:"languages"`
	Status       AgentStatus `json:"status"`
	CurrentLoad  int         `json:"current_load"`
	MaxLoad      int         `json:"max_load"`
	LastActivity time.Time   `json:"last_activity"`
}

// HasExpertise reports whether tag is one of the agent's expertise tags.
func (a Agent) HasExpertise(tag string) bool {
	return slices.Contains(a.Expertise, tag)
}

// SpeaksLanguage reports whether the agent handles the language code.
func (a Agent) SpeaksLanguage(code string) bool {
	return slices.Contains(a.Languages, code)
}

// HasCapacity reports whether the agent is available and below MaxLoad.
func (a Agent) HasCapacity() bool {
	return a.Status == AgentAvailable && a.CurrentLoad < a.MaxLoad
}

// Remaining returns the number of additional conversations the agent can take.
func (a Agent) Remaining() int {
	if a.CurrentLoad >= a.MaxLoad {
		return 0
	}
	return a.MaxLoad - a.CurrentLoad
}

// Clone returns a deep copy so callers cannot alias registry-owned slices.
func (a Agent) Clone() Agent {
	a.Expertise = slices.Clone(a.Expertise)
	a.Languages = slices.Clone(a.Languages)
	return a
}
