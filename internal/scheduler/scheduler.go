// Package scheduler runs the background loop that pairs pending escalations
// with available agents.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/notify"
)

const (
	DefaultInterval      = 10 * time.Second
	DefaultMaxBackoff    = 30 * time.Second
	DefaultNotifyTimeout = 10 * time.Second
)

// Queue is the subset of the escalation queue the scheduler drives.
type Queue interface {
	ListPending() []models.EscalatedQuery
	MarkAssigned(id, agentID string) error
}

// Registry is the subset of the agent registry the scheduler drives.
type Registry interface {
	ListAvailable() []models.Agent
	ReserveCapacity(agentID string) error
	ReleaseCapacity(agentID string) error
}

// Selector picks the best agent for a query.
type Selector interface {
	SelectBestAgent(q models.EscalatedQuery, candidates []models.Agent) (models.Agent, bool)
}

// Opts configures a Scheduler.
type Opts struct {
	Queue    Queue
	Registry Registry
	Matcher  Selector
	Notifier notify.Notifier // nil disables notification

	Interval      time.Duration // pause between successful ticks
	MaxBackoff    time.Duration // cap on the pause after a failed tick
	NotifyTimeout time.Duration

	// OnNotifyError is called after a failed notification, outside any lock.
	OnNotifyError func(agent models.Agent, q models.EscalatedQuery, err error)

	Logger *Logger   // nil discards log lines
	Out    io.Writer // operator progress lines; nil discards
}

// TickResult summarises one pass over the pending snapshot.
type TickResult struct {
	Considered   int
	Assigned     int
	Deferred     int // no capacity right now, retried next tick
	Failed       int
	NotifyFailed int
}

// Scheduler assigns pending queries to agents. Run must be called at most once.
type Scheduler struct {
	queue    Queue
	registry Registry
	matcher  Selector
	notifier notify.Notifier

	interval      time.Duration
	maxBackoff    time.Duration
	notifyTimeout time.Duration
	onNotifyError func(models.Agent, models.EscalatedQuery, error)

	logger  *Logger
	out     io.Writer
	trigger chan struct{}
	after   func(time.Duration) <-chan time.Time
}

// New validates opts and returns a Scheduler.
func New(opts Opts) (*Scheduler, error) {
	if opts.Queue == nil {
		return nil, fmt.Errorf("scheduler: queue is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("scheduler: registry is required")
	}
	if opts.Matcher == nil {
		return nil, fmt.Errorf("scheduler: matcher is required")
	}
	s := &Scheduler{
		queue:         opts.Queue,
		registry:      opts.Registry,
		matcher:       opts.Matcher,
		notifier:      opts.Notifier,
		interval:      opts.Interval,
		maxBackoff:    opts.MaxBackoff,
		notifyTimeout: opts.NotifyTimeout,
		onNotifyError: opts.OnNotifyError,
		logger:        opts.Logger,
		out:           opts.Out,
		trigger:       make(chan struct{}, 1),
		after:         time.After,
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.maxBackoff <= 0 {
		s.maxBackoff = max(DefaultMaxBackoff, s.interval)
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = DefaultNotifyTimeout
	}
	if s.out == nil {
		s.out = io.Discard
	}
	return s, nil
}

// Trigger asks a running loop to tick now instead of waiting out the
// interval. It never blocks; triggers during a backoff are ignored.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run ticks until ctx is cancelled. It returns only after the in-flight tick
// has finished, so no assignment is left half-applied.
func (s *Scheduler) Run(ctx context.Context) error {
	fmt.Fprintf(s.out, "Scheduler starting (tick every %s, max backoff %s)...\n", s.interval, s.maxBackoff)
	defer fmt.Fprintf(s.out, "Scheduler stopped.\n")

	var backoff time.Duration
	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := s.safeTick(ctx)
		if err != nil {
			backoff = nextBackoff(backoff, s.interval, s.maxBackoff)
			s.logger.log(LogLevelError, "tick failed: %v (retrying in %s)", err, backoff)
			s.sleep(ctx, backoff, nil)
			continue
		}

		backoff = 0
		if res.Assigned > 0 || res.Failed > 0 {
			s.logger.log(LogLevelInfo, "tick considered=%d assigned=%d deferred=%d failed=%d notify_failed=%d",
				res.Considered, res.Assigned, res.Deferred, res.Failed, res.NotifyFailed)
		}
		s.sleep(ctx, s.interval, s.trigger)
	}
}

// nextBackoff starts at twice the interval and doubles up to limit.
func nextBackoff(prev, interval, limit time.Duration) time.Duration {
	next := 2 * interval
	if prev > 0 {
		next = 2 * prev
	}
	return min(next, limit)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-s.after(d):
	case <-wake:
	}
}

// safeTick runs Tick and converts a panic into an error.
func (s *Scheduler) safeTick(ctx context.Context) (res TickResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.log(LogLevelError, "panic in tick: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("scheduler: panic in tick: %v", r)
		}
	}()
	return s.Tick(ctx)
}

// Tick makes one assignment pass over a snapshot of the pending queries.
// Items that cannot be placed stay pending. The returned error joins failures
// that are neither missing records nor lost races.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	var errs []error

	for _, q := range s.queue.ListPending() {
		if ctx.Err() != nil {
			break
		}
		res.Considered++

		agent, ok := s.matcher.SelectBestAgent(q, s.registry.ListAvailable())
		if !ok {
			res.Deferred++
			s.logger.log(LogLevelDebug, "no agent available for query=%s", q.ID)
			continue
		}

		if err := s.registry.ReserveCapacity(agent.ID); err != nil {
			switch {
			case errors.Is(err, models.ErrCapacityExceeded):
				res.Deferred++
				s.logger.log(LogLevelDebug, "agent=%s filled before reserve, query=%s deferred", agent.ID, q.ID)
			case errors.Is(err, models.ErrNotFound):
				res.Failed++
				s.logger.log(LogLevelError, "reserve agent=%s for query=%s: %v", agent.ID, q.ID, err)
			default:
				res.Failed++
				errs = append(errs, fmt.Errorf("scheduler: reserve %s for %s: %w", agent.ID, q.ID, err))
			}
			continue
		}

		if err := s.queue.MarkAssigned(q.ID, agent.ID); err != nil {
			if rerr := s.registry.ReleaseCapacity(agent.ID); rerr != nil {
				s.logger.log(LogLevelError, "release agent=%s after failed assign: %v", agent.ID, rerr)
			}
			res.Failed++
			if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidTransition) {
				s.logger.log(LogLevelError, "assign query=%s agent=%s: %v", q.ID, agent.ID, err)
			} else {
				errs = append(errs, fmt.Errorf("scheduler: assign %s to %s: %w", q.ID, agent.ID, err))
			}
			continue
		}

		res.Assigned++
		agent.CurrentLoad++
		q.Status = models.QueryAssigned
		q.AgentID = agent.ID
		s.logger.log(LogLevelInfo, "assigned query=%s agent=%s reason=%s priority=%d", q.ID, agent.ID, q.Reason, q.Priority)
		fmt.Fprintf(s.out, "Assigned %s to %s (%s)\n", q.ID, agent.Name, q.Reason.Title())

		if err := s.notifyAgent(ctx, agent, q); err != nil {
			res.NotifyFailed++
			s.logger.log(LogLevelWarn, "notify agent=%s query=%s: %v", agent.ID, q.ID, err)
			if s.onNotifyError != nil {
				s.onNotifyError(agent, q, err)
			}
		}
	}
	return res, errors.Join(errs...)
}

func (s *Scheduler) notifyAgent(ctx context.Context, agent models.Agent, q models.EscalatedQuery) error {
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	return s.notifier.Notify(ctx, agent, q)
}
