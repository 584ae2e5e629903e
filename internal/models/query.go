package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// QueryStatus is the lifecycle state of an escalated query.
type QueryStatus string

const (
	QueryPending  QueryStatus = "pending"
	QueryAssigned QueryStatus = "assigned"
	QueryResolved QueryStatus = "resolved"
	QueryClosed   QueryStatus = "closed"
)

// QueryStatuses lists every query status in lifecycle order.
var QueryStatuses = []QueryStatus{QueryPending, QueryAssigned, QueryResolved, QueryClosed}

// Reason explains why a query left the automated path.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonTechnicalIssue     Reason = "technical_issue"
	ReasonComplexQuery       Reason = "complex_query"
	ReasonCustomerComplaint  Reason = "customer_complaint"
	ReasonPriceNegotiation   Reason = "price_negotiation"
	ReasonCustomRequirements Reason = "custom_requirements"
	ReasonLanguageBarrier    Reason = "language_barrier"
	ReasonEmergency          Reason = "emergency"
)

// Reasons lists the closed set of escalation reasons.
var Reasons = []Reason{
	ReasonTechnicalIssue,
	ReasonComplexQuery,
	ReasonCustomerComplaint,
	ReasonPriceNegotiation,
	ReasonCustomRequirements,
	ReasonLanguageBarrier,
	ReasonEmergency,
}

// ParseReason converts a reason string into a Reason.
func ParseReason(s string) (Reason, error) {
	r := Reason(s)
	if !slices.Contains(Reasons, r) {
		return ReasonNone, fmt.Errorf("models: unknown escalation reason %q", s)
	}
	return r, nil
}

// Words splits the reason into its component capability words,
// e.g. "price_negotiation" -> ["price", "negotiation"].
func (r Reason) Words() []string {
	if r == ReasonNone {
		return nil
	}
	return strings.Split(string(r), "_")
}

// Title renders the reason for humans, e.g. "Price Negotiation".
func (r Reason) Title() string {
	words := r.Words()
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Complexity is derived from priority.
type Complexity string

const (
	ComplexityComplex  Complexity = "complex"
	ComplexityCritical Complexity = "critical"
)

const (
	MinPriority     = 1
	MaxPriority     = 5
	CriticalAt      = 4
	DefaultLanguage = "en"
)

// ComplexityFor maps a priority to its complexity band.
func ComplexityFor(priority int) Complexity {
	if priority >= CriticalAt {
		return ComplexityCritical
	}
	return ComplexityComplex
}

// ClampPriority forces priority into [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	return max(MinPriority, min(MaxPriority, p))
}

// EscalatedQuery is one unit of work waiting for, or handled by, a human agent.
type EscalatedQuery struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customer_id"`
	Query      string      `json:"query"`
	Reason     Reason      `json:"reason"`
	Complexity Complexity  `json:"complexity"`
	Priority   int         `json:"priority"`
	Language   string      `json:"language"`
	Status     QueryStatus `json:"status"`
	AgentID    string      `json:"agent_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	AssignedAt *time.Time  `json:"assigned_at,omitempty"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
	ClosedAt   *time.Time  `json:"closed_at,omitempty"`
	Notes      string      `json:"notes,omitempty"`
}

// Clone returns a copy that shares no pointers with q.
func (q EscalatedQuery) Clone() EscalatedQuery {
	q.AssignedAt = cloneTime(q.AssignedAt)
	q.ResolvedAt = cloneTime(q.ResolvedAt)
	q.ClosedAt = cloneTime(q.ClosedAt)
	return q
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
