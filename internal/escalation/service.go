// Package escalation is the inbound surface of the engine: it classifies
// queries, enqueues escalations, resolves them and reports on the queue. It
// owns the queue, the agent registry and the assignment scheduler.
package escalation

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zulandar/switchboard/internal/classifier"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/matcher"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/notify"
	"github.com/zulandar/switchboard/internal/queue"
	"github.com/zulandar/switchboard/internal/registry"
	"github.com/zulandar/switchboard/internal/scheduler"
)

// Customer-facing messages.
const (
	msgEscalated  = "Query escalated to human agent. You will receive a response shortly."
	msgAutomated  = "Query can be answered automatically."
	msgEscalateKO = "Failed to escalate query. Please try again later."
)

// Journal records lifecycle events. *journal.Journal satisfies it.
type Journal interface {
	Observe(tr queue.Transition)
	Record(ctx context.Context, ev models.EscalationEvent) error
}

// Opts configures a Service.
type Opts struct {
	Config   *config.Config  // nil uses config.Default()
	Notifier notify.Notifier // nil disables alerts
	Journal  Journal         // optional
	Logger   *scheduler.Logger
	Out      io.Writer
	Clock    func() time.Time
}

// Service wires the engine together. All methods are safe for concurrent use.
type Service struct {
	classifier atomic.Pointer[classifier.Classifier]
	matcher    atomic.Pointer[matcher.Matcher]

	queue    *queue.Queue
	registry *registry.Registry
	sched    *scheduler.Scheduler
	journal  Journal
	now      func() time.Time
	version  atomic.Uint64

	mu      sync.Mutex
	done    chan struct{}
	runErr  error
	started bool
}

// New builds a Service from configuration. The scheduler does not run until
// Start is called.
func New(opts Opts) (*Service, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Service{journal: opts.Journal, now: opts.Clock}
	if s.now == nil {
		s.now = time.Now
	}

	reg, err := registry.New(cfg.AgentModels(s.now()), registry.WithClock(s.now))
	if err != nil {
		return nil, fmt.Errorf("escalation: %w", err)
	}
	s.registry = reg

	qopts := []queue.Option{queue.WithClock(s.now), queue.WithObserver(s.observe)}
	if s.journal != nil {
		qopts = append(qopts, queue.WithObserver(s.journal.Observe))
	}
	s.queue = queue.New(qopts...)

	s.classifier.Store(classifier.New(cfg.Classifier))
	s.matcher.Store(matcher.FromConfig(cfg.Matcher))

	s.sched, err = scheduler.New(scheduler.Opts{
		Queue:         s.queue,
		Registry:      s.registry,
		Matcher:       s,
		Notifier:      opts.Notifier,
		Interval:      cfg.Scheduler.TickInterval,
		MaxBackoff:    cfg.Scheduler.MaxBackoff,
		OnNotifyError: s.notifyFailed,
		Logger:        opts.Logger,
		Out:           opts.Out,
	})
	if err != nil {
		return nil, fmt.Errorf("escalation: %w", err)
	}
	return s, nil
}

// Start launches the scheduler loop. It stops when ctx is cancelled; Wait
// returns once the in-flight tick has finished.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		err := s.sched.Run(ctx)
		s.mu.Lock()
		s.runErr = err
		s.mu.Unlock()
	}()
}

// Wait blocks until the scheduler started by Start has stopped.
func (s *Service) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Tick runs one assignment pass synchronously.
func (s *Service) Tick(ctx context.Context) (scheduler.TickResult, error) {
	return s.sched.Tick(ctx)
}

// ApplyConfig swaps in the classifier and matcher settings from cfg. The
// roster and scheduler cadence only change on restart.
func (s *Service) ApplyConfig(cfg *config.Config) {
	s.classifier.Store(classifier.New(cfg.Classifier))
	s.matcher.Store(matcher.FromConfig(cfg.Matcher))
}

// SelectBestAgent delegates to the current matcher.
func (s *Service) SelectBestAgent(q models.EscalatedQuery, candidates []models.Agent) (models.Agent, bool) {
	return s.matcher.Load().SelectBestAgent(q, candidates)
}

// Version increases whenever a query or agent changes state.
func (s *Service) Version() uint64 {
	return s.version.Load()
}

func (s *Service) observe(queue.Transition) {
	s.version.Add(1)
}

func (s *Service) notifyFailed(agent models.Agent, q models.EscalatedQuery, err error) {
	s.record(models.EscalationEvent{
		QueryID:  q.ID,
		AgentID:  agent.ID,
		Type:     models.EventNotifyFailed,
		Reason:   string(q.Reason),
		Priority: q.Priority,
		Detail:   err.Error(),
	})
}

func (s *Service) record(ev models.EscalationEvent) {
	if s.journal == nil {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	if err := s.journal.Record(context.Background(), ev); err != nil {
		log.Printf("escalation: journal: %v", err)
	}
}

// Result is the outcome of an inbound operation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	err     error
}

// Err returns the failure behind an unsuccessful Result.
func (r Result) Err() error { return r.err }

func fail(err error) Result {
	return Result{Message: err.Error(), err: err}
}

// Request is a customer query plus the automated responder's telemetry.
type Request struct {
	CustomerID string
	Query      string
	Language   string
	Priority   int
	Confidence float64       // responder confidence in [0, 1]
	Latency    time.Duration // responder latency
}

// EscalateResult describes what happened to a query.
type EscalateResult struct {
	Success       bool          `json:"success"`
	Escalated     bool          `json:"escalated"`
	QueryID       string        `json:"query_id,omitempty"`
	Reason        models.Reason `json:"reason,omitempty"`
	EstimatedWait string        `json:"estimated_wait_time,omitempty"`
	Message       string        `json:"message"`
}

// ClassifyAndEscalate runs the classifier and enqueues the query when it
// should go to a human.
func (s *Service) ClassifyAndEscalate(ctx context.Context, req Request) EscalateResult {
	d := s.classifier.Load().Classify(req.Query, req.Confidence, req.Latency)
	if !d.Escalate {
		return EscalateResult{Success: true, Message: msgAutomated}
	}
	return s.Escalate(ctx, req.CustomerID, req.Query, d.Reason, req.Priority, req.Language)
}

// Escalate enqueues a query with a caller-chosen reason. An empty reason
// means complex_query.
func (s *Service) Escalate(_ context.Context, customerID, query string, reason models.Reason, priority int, language string) EscalateResult {
	if query == "" {
		return EscalateResult{Message: msgEscalateKO + " (query is required)"}
	}
	if reason == models.ReasonNone {
		reason = models.ReasonComplexQuery
	}
	if _, err := models.ParseReason(string(reason)); err != nil {
		return EscalateResult{Message: err.Error()}
	}
	if customerID == "" {
		customerID = "unknown"
	}

	id := s.queue.Enqueue(models.EscalatedQuery{
		CustomerID: customerID,
		Query:      query,
		Reason:     reason,
		Priority:   priority,
		Language:   language,
	})
	s.sched.Trigger()

	return EscalateResult{
		Success:       true,
		Escalated:     true,
		QueryID:       id,
		Reason:        reason,
		EstimatedWait: s.EstimateWait(),
		Message:       msgEscalated,
	}
}

// Resolve records the agent's response and frees the agent's slot.
func (s *Service) Resolve(_ context.Context, queryID, response string) Result {
	rec, err := s.queue.Resolve(queryID, response)
	if err != nil {
		return fail(err)
	}
	if err := s.registry.ReleaseCapacity(rec.AgentID); err != nil {
		log.Printf("escalation: release %s after resolving %s: %v", rec.AgentID, queryID, err)
	}
	s.sched.Trigger()
	return Result{Success: true, Message: fmt.Sprintf("Query %s resolved", queryID)}
}

// Close moves a resolved query to its terminal state.
func (s *Service) Close(_ context.Context, queryID string) Result {
	if _, err := s.queue.Close(queryID); err != nil {
		return fail(err)
	}
	return Result{Success: true, Message: fmt.Sprintf("Query %s closed", queryID)}
}

// SetAgentStatus changes an agent's availability.
func (s *Service) SetAgentStatus(_ context.Context, agentID, status string) Result {
	st, err := models.ParseAgentStatus(status)
	if err != nil {
		return fail(err)
	}
	if err := s.registry.SetStatus(agentID, st); err != nil {
		return fail(err)
	}
	s.version.Add(1)
	s.record(models.EscalationEvent{AgentID: agentID, Type: models.EventAgentStatus, Detail: string(st)})
	if st == models.AgentAvailable {
		s.sched.Trigger()
	}
	return Result{Success: true, Message: fmt.Sprintf("Agent %s is now %s", agentID, st)}
}

// AgentResponse is the human answer to a resolved query.
type AgentResponse struct {
	QueryID     string    `json:"query_id"`
	AgentName   string    `json:"agent_name"`
	Response    string    `json:"response"`
	RespondedAt time.Time `json:"response_time"`
}

// GetAgentResponse returns the response for a resolved or closed query, or
// nil while the query is still open or unknown.
func (s *Service) GetAgentResponse(queryID string) *AgentResponse {
	rec, err := s.queue.Get(queryID)
	if err != nil || rec.ResolvedAt == nil {
		return nil
	}
	name := "Unknown"
	if a, err := s.registry.Get(rec.AgentID); err == nil {
		name = a.Name
	}
	return &AgentResponse{
		QueryID:     rec.ID,
		AgentName:   name,
		Response:    rec.Notes,
		RespondedAt: *rec.ResolvedAt,
	}
}

// Get returns one query.
func (s *Service) Get(queryID string) (models.EscalatedQuery, error) {
	return s.queue.Get(queryID)
}

// Queries lists queries with the given status, or all of them.
func (s *Service) Queries(status models.QueryStatus) []models.EscalatedQuery {
	return s.queue.List(status)
}

// EstimateWait estimates the wait for a query enqueued now.
func (s *Service) EstimateWait() string {
	_, available := s.registry.Counts()
	return EstimateWait(available, s.queue.Counts()[models.QueryPending])
}
