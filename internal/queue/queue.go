// Package queue holds escalated queries and is the only place their
// lifecycle status changes.
package queue

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/models"
)

// IDPrefix marks escalation IDs.
const IDPrefix = "ESC-"

// Transition describes one status change, delivered to observers after the
// queue lock has been released.
type Transition struct {
	Query models.EscalatedQuery
	From  models.QueryStatus // "" for enqueue
	To    models.QueryStatus
}

// Observer receives transitions. It must not block for long.
type Observer func(Transition)

// Queue is the canonical, insertion-ordered collection of escalated queries.
// Each state transition runs inside a single critical section.
type Queue struct {
	mu        sync.RWMutex
	items     []*models.EscalatedQuery
	byID      map[string]*models.EscalatedQuery
	now       func() time.Time
	newID     func() string
	observers []Observer
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the clock used for lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithIDGenerator overrides ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(q *Queue) { q.newID = gen }
}

// WithObserver registers a transition observer.
func WithObserver(o Observer) Option {
	return func(q *Queue) { q.observers = append(q.observers, o) }
}

// New creates an empty Queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		byID:  make(map[string]*models.EscalatedQuery),
		now:   time.Now,
		newID: newEscalationID,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// newEscalationID returns a time-ordered ID so IDs sort by creation.
func newEscalationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return IDPrefix + strings.ToUpper(id.String())
}

// Enqueue stores item as a new pending query and returns its ID. Status,
// AgentID and lifecycle timestamps on the input are ignored; priority is
// clamped to 1-5, complexity derived from it, and language defaults to "en".
func (q *Queue) Enqueue(item models.EscalatedQuery) string {
	rec := item.Clone()
	rec.Status = models.QueryPending
	rec.AgentID = ""
	rec.AssignedAt, rec.ResolvedAt, rec.ClosedAt = nil, nil, nil
	rec.Notes = ""
	rec.Priority = models.ClampPriority(rec.Priority)
	rec.Complexity = models.ComplexityFor(rec.Priority)
	if rec.Language == "" {
		rec.Language = models.DefaultLanguage
	}

	q.mu.Lock()
	rec.ID = q.newID()
	rec.CreatedAt = q.now()
	q.items = append(q.items, &rec)
	q.byID[rec.ID] = &rec
	snapshot := rec.Clone()
	q.mu.Unlock()

	q.emit(Transition{Query: snapshot, To: models.QueryPending})
	return snapshot.ID
}

// ListPending returns a fresh snapshot of pending queries, oldest first.
func (q *Queue) ListPending() []models.EscalatedQuery {
	return q.List(models.QueryPending)
}

// List returns copies of queries with the given status, oldest first. An
// empty status lists everything.
func (q *Queue) List(status models.QueryStatus) []models.EscalatedQuery {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []models.EscalatedQuery
	for _, it := range q.items {
		if status == "" || it.Status == status {
			out = append(out, it.Clone())
		}
	}
	return out
}

// Get returns a copy of one query.
func (q *Queue) Get(id string) (models.EscalatedQuery, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	it, ok := q.byID[id]
	if !ok {
		return models.EscalatedQuery{}, fmt.Errorf("queue: query %s: %w", id, models.ErrNotFound)
	}
	return it.Clone(), nil
}

// MarkAssigned moves a pending query to assigned and records the agent.
func (q *Queue) MarkAssigned(id, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("queue: assign %s: agent id is required", id)
	}
	_, err := q.transition(id, models.QueryPending, models.QueryAssigned, func(it *models.EscalatedQuery, now time.Time) {
		it.AgentID = agentID
		it.AssignedAt = &now
	})
	if err != nil {
		return fmt.Errorf("queue: assign %s: %w", id, err)
	}
	return nil
}

// Resolve moves an assigned query to resolved with the agent's response, and
// returns the resolved record so the caller can release the agent.
func (q *Queue) Resolve(id, response string) (models.EscalatedQuery, error) {
	rec, err := q.transition(id, models.QueryAssigned, models.QueryResolved, func(it *models.EscalatedQuery, now time.Time) {
		it.Notes = response
		it.ResolvedAt = &now
	})
	if err != nil {
		return models.EscalatedQuery{}, fmt.Errorf("queue: resolve %s: %w", id, err)
	}
	return rec, nil
}

// Close moves a resolved query to its terminal closed state.
func (q *Queue) Close(id string) (models.EscalatedQuery, error) {
	rec, err := q.transition(id, models.QueryResolved, models.QueryClosed, func(it *models.EscalatedQuery, now time.Time) {
		it.ClosedAt = &now
	})
	if err != nil {
		return models.EscalatedQuery{}, fmt.Errorf("queue: close %s: %w", id, err)
	}
	return rec, nil
}

func (q *Queue) transition(id string, from, to models.QueryStatus, apply func(*models.EscalatedQuery, time.Time)) (models.EscalatedQuery, error) {
	q.mu.Lock()
	it, ok := q.byID[id]
	if !ok {
		q.mu.Unlock()
		return models.EscalatedQuery{}, models.ErrNotFound
	}
	if it.Status != from {
		status := it.Status
		q.mu.Unlock()
		return models.EscalatedQuery{}, fmt.Errorf("status is %s, want %s: %w", status, from, models.ErrInvalidTransition)
	}
	apply(it, q.now())
	it.Status = to
	snapshot := it.Clone()
	q.mu.Unlock()

	q.emit(Transition{Query: snapshot, From: from, To: to})
	return snapshot, nil
}

// Counts returns the number of queries per status.
func (q *Queue) Counts() map[models.QueryStatus]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make(map[models.QueryStatus]int, len(models.QueryStatuses))
	for _, st := range models.QueryStatuses {
		out[st] = 0
	}
	for _, it := range q.items {
		out[it.Status]++
	}
	return out
}

// Len returns the total number of queries ever enqueued.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

func (q *Queue) emit(t Transition) {
	for _, o := range q.observers {
		o(t)
	}
}
