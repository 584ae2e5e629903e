// Package registry holds the roster of human agents and their mutable
// status and capacity.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

// Registry owns every Agent record. ReserveCapacity and ReleaseCapacity are
// the only paths that change CurrentLoad.
type Registry struct {
	mu     sync.RWMutex
	agents []*models.Agent // roster order; iteration order for matching
	byID   map[string]*models.Agent
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used for LastActivity.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New builds a Registry from a roster. IDs must be unique and MaxLoad positive.
func New(agents []models.Agent, opts ...Option) (*Registry, error) {
	r := &Registry{
		byID: make(map[string]*models.Agent, len(agents)),
		now:  time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	for _, a := range agents {
		if a.ID == "" {
			return nil, fmt.Errorf("registry: agent id is required")
		}
		if _, dup := r.byID[a.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate agent id %q", a.ID)
		}
		if a.MaxLoad < 1 {
			return nil, fmt.Errorf("registry: agent %s: max load must be positive", a.ID)
		}
		if a.CurrentLoad < 0 || a.CurrentLoad > a.MaxLoad {
			return nil, fmt.Errorf("registry: agent %s: load %d outside [0, %d]", a.ID, a.CurrentLoad, a.MaxLoad)
		}
		if a.Status == "" {
			a.Status = models.AgentAvailable
		}
		if a.LastActivity.IsZero() {
			a.LastActivity = r.now()
		}
		rec := a.Clone()
		r.agents = append(r.agents, &rec)
		r.byID[rec.ID] = &rec
	}
	return r, nil
}

// ListAvailable returns copies of agents that are available and below
// MaxLoad, in roster order.
func (r *Registry) ListAvailable() []models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Agent
	for _, a := range r.agents {
		if a.HasCapacity() {
			out = append(out, a.Clone())
		}
	}
	return out
}

// List returns copies of every agent in roster order.
func (r *Registry) List() []models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Agent, len(r.agents))
	for i, a := range r.agents {
		out[i] = a.Clone()
	}
	return out
}

// Get returns a copy of one agent.
func (r *Registry) Get(id string) (models.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return models.Agent{}, fmt.Errorf("registry: agent %s: %w", id, models.ErrNotFound)
	}
	return a.Clone(), nil
}

// ReserveCapacity takes one conversation slot from the agent. It fails with
// ErrCapacityExceeded, leaving the agent untouched, when the agent is full or
// not available.
func (r *Registry) ReserveCapacity(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("registry: reserve %s: %w", id, models.ErrNotFound)
	}
	if a.Status != models.AgentAvailable {
		return fmt.Errorf("registry: reserve %s: agent is %s: %w", id, a.Status, models.ErrCapacityExceeded)
	}
	if a.CurrentLoad >= a.MaxLoad {
		return fmt.Errorf("registry: reserve %s: %d/%d in use: %w", id, a.CurrentLoad, a.MaxLoad, models.ErrCapacityExceeded)
	}
	a.CurrentLoad++
	a.LastActivity = r.now()
	return nil
}

// ReleaseCapacity returns one slot to the agent. Load never drops below zero,
// so a double release is harmless.
func (r *Registry) ReleaseCapacity(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("registry: release %s: %w", id, models.ErrNotFound)
	}
	if a.CurrentLoad > 0 {
		a.CurrentLoad--
	}
	a.LastActivity = r.now()
	return nil
}

// SetStatus changes an agent's availability. Load is unaffected: an agent
// going offline keeps its open conversations until they are resolved.
func (r *Registry) SetStatus(id string, status models.AgentStatus) error {
	if _, err := models.ParseAgentStatus(string(status)); err != nil {
		return fmt.Errorf("registry: set status %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("registry: set status %s: %w", id, models.ErrNotFound)
	}
	a.Status = status
	a.LastActivity = r.now()
	return nil
}

// Counts returns the number of agents per status, plus how many can take work.
func (r *Registry) Counts() (byStatus map[models.AgentStatus]int, withCapacity int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byStatus = make(map[models.AgentStatus]int, len(models.AgentStatuses))
	for _, st := range models.AgentStatuses {
		byStatus[st] = 0
	}
	for _, a := range r.agents {
		byStatus[a.Status]++
		if a.HasCapacity() {
			withCapacity++
		}
	}
	return byStatus, withCapacity
}

// Len returns the roster size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
