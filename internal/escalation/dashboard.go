package escalation

import (
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/queue"
	"github.com/zulandar/switchboard/internal/registry"
)

// AgentView is the dashboard projection of one agent.
type AgentView struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Status      models.AgentStatus `json:"status"`
	CurrentLoad int                `json:"current_load"`
	MaxLoad     int                `json:"max_load"`
	Expertise   []string           `json:"expertise"`
	Languages   []string           `json:"languages"`
}

// Snapshot is a read-only view of agents and queries.
type Snapshot struct {
	TotalAgents     int                        `json:"total_agents"`
	AvailableAgents int                        `json:"available_agents"`
	BusyAgents      int                        `json:"busy_agents"`
	AgentsByStatus  map[models.AgentStatus]int `json:"agents_by_status"`
	TotalQueries    int                        `json:"total_queries"`
	PendingQueries  int                        `json:"pending_queries"`
	ResolvedQueries int                        `json:"resolved_queries"`
	QueriesByStatus map[models.QueryStatus]int `json:"queries_by_status"`
	Agents          []AgentView                `json:"agents"`
	EstimatedWait   string                     `json:"estimated_wait_time"`
	Version         uint64                     `json:"version"`
	GeneratedAt     time.Time                  `json:"generated_at"`
}

// Dashboard builds a Snapshot. It takes only read locks, one structure at a
// time, so counts may straddle a concurrent transition.
func (s *Service) Dashboard() Snapshot {
	agents := s.registry.List()
	byStatus, withCapacity := s.registry.Counts()
	queries := s.queue.Counts()

	snap := Snapshot{
		TotalAgents:     len(agents),
		AvailableAgents: byStatus[models.AgentAvailable],
		BusyAgents:      byStatus[models.AgentBusy],
		AgentsByStatus:  byStatus,
		PendingQueries:  queries[models.QueryPending],
		ResolvedQueries: queries[models.QueryResolved],
		QueriesByStatus: queries,
		Agents:          make([]AgentView, 0, len(agents)),
		EstimatedWait:   EstimateWait(withCapacity, queries[models.QueryPending]),
		Version:         s.Version(),
		GeneratedAt:     s.now(),
	}
	for _, n := range queries {
		snap.TotalQueries += n
	}
	for _, a := range agents {
		snap.Agents = append(snap.Agents, AgentView{
			ID:          a.ID,
			Name:        a.Name,
			Status:      a.Status,
			CurrentLoad: a.CurrentLoad,
			MaxLoad:     a.MaxLoad,
			Expertise:   a.Expertise,
			Languages:   a.Languages,
		})
	}
	return snap
}

// QueueStats is a read-only view of queue counts.
type QueueStats struct{ q *queue.Queue }

// Counts returns the number of queries per status.
func (qs QueueStats) Counts() map[models.QueryStatus]int { return qs.q.Counts() }

// AgentStats is a read-only view of agent counts.
type AgentStats struct{ r *registry.Registry }

// Counts returns agents per status and how many can take another query.
func (as AgentStats) Counts() (map[models.AgentStatus]int, int) { return as.r.Counts() }

// QueueStats exposes queue counts for reporting.
func (s *Service) QueueStats() QueueStats { return QueueStats{s.queue} }

// AgentStats exposes agent counts for reporting.
func (s *Service) AgentStats() AgentStats { return AgentStats{s.registry} }
