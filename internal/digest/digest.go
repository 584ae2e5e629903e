// Package digest periodically posts a summary of the escalation queue to the
// shared agent channel.
package digest

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/notify"
)

// QueueStats reports queue counts per status.
type QueueStats interface {
	Counts() map[models.QueryStatus]int
}

// AgentStats reports agent counts per status and how many can take work.
type AgentStats interface {
	Counts() (map[models.AgentStatus]int, int)
}

// EventCounter reports journal activity since a point in time.
type EventCounter interface {
	CountByType(ctx context.Context, since time.Time) (map[string]int64, error)
}

// Opts configures a Digest.
type Opts struct {
	Schedule string // 5-field cron expression or @descriptor
	Poster   notify.Poster
	Queue    QueueStats
	Agents   AgentStats
	Journal  EventCounter  // optional
	Estimate func() string // optional wait-time estimate
	Out      io.Writer
}

// Report is one digest's numbers.
type Report struct {
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Queries        map[models.QueryStatus]int
	AgentsByStatus map[models.AgentStatus]int
	AgentsWithRoom int
	Activity       map[string]int64 // journal counts in the period; nil without a journal
	EstimatedWait  string
}

// Digest builds and posts reports on a cron schedule.
type Digest struct {
	schedule cron.Schedule
	poster   notify.Poster
	queue    QueueStats
	agents   AgentStats
	journal  EventCounter
	estimate func() string
	out      io.Writer
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
}

// New parses the schedule and returns a Digest.
func New(opts Opts) (*Digest, error) {
	sched, err := config.ParseSchedule(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("digest: schedule %q: %w", opts.Schedule, err)
	}
	if opts.Poster == nil {
		return nil, fmt.Errorf("digest: poster is required")
	}
	if opts.Queue == nil || opts.Agents == nil {
		return nil, fmt.Errorf("digest: queue and agent stats are required")
	}
	d := &Digest{
		schedule: sched,
		poster:   opts.Poster,
		queue:    opts.Queue,
		agents:   opts.Agents,
		journal:  opts.Journal,
		estimate: opts.Estimate,
		out:      opts.Out,
		now:      time.Now,
		after:    time.After,
	}
	if d.out == nil {
		d.out = io.Discard
	}
	return d, nil
}

// Run posts a digest at every scheduled time until ctx is cancelled.
func (d *Digest) Run(ctx context.Context) error {
	last := d.now()
	for {
		now := d.now()
		select {
		case <-ctx.Done():
			return nil
		case <-d.after(d.schedule.Next(now).Sub(now)):
		}

		posted, err := d.Send(ctx, last)
		if err != nil {
			log.Printf("digest: %v", err)
			continue
		}
		if posted {
			fmt.Fprintf(d.out, "Digest posted at %s\n", d.now().Format(time.RFC3339))
		}
		last = d.now()
	}
}

// Send builds a report covering [since, now) and posts it. Quiet periods with
// an empty queue and no journal activity are suppressed.
func (d *Digest) Send(ctx context.Context, since time.Time) (bool, error) {
	r, err := d.Build(ctx, since)
	if err != nil {
		return false, err
	}
	if r.quiet() {
		return false, nil
	}
	if err := d.poster.Post(ctx, Format(r)); err != nil {
		return false, fmt.Errorf("digest: post: %w", err)
	}
	return true, nil
}

// Build gathers the current numbers.
func (d *Digest) Build(ctx context.Context, since time.Time) (*Report, error) {
	r := &Report{
		PeriodStart: since,
		PeriodEnd:   d.now(),
		Queries:     d.queue.Counts(),
	}
	r.AgentsByStatus, r.AgentsWithRoom = d.agents.Counts()
	if d.estimate != nil {
		r.EstimatedWait = d.estimate()
	}
	if d.journal != nil {
		activity, err := d.journal.CountByType(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("digest: %w", err)
		}
		r.Activity = activity
	}
	return r, nil
}

func (r *Report) quiet() bool {
	if r.Queries[models.QueryPending] > 0 || r.Queries[models.QueryAssigned] > 0 {
		return false
	}
	for _, n := range r.Activity {
		if n > 0 {
			return false
		}
	}
	return true
}

// Format renders a report as a chat post.
func Format(r *Report) notify.Post {
	total := 0
	for _, n := range r.AgentsByStatus {
		total += n
	}

	fields := []notify.Field{
		{Name: "Pending", Value: strconv.Itoa(r.Queries[models.QueryPending]), Short: true},
		{Name: "Assigned", Value: strconv.Itoa(r.Queries[models.QueryAssigned]), Short: true},
		{Name: "Resolved", Value: strconv.Itoa(r.Queries[models.QueryResolved]), Short: true},
		{Name: "Closed", Value: strconv.Itoa(r.Queries[models.QueryClosed]), Short: true},
		{Name: "Agents with capacity", Value: fmt.Sprintf("%d/%d", r.AgentsWithRoom, total), Short: true},
	}
	if r.EstimatedWait != "" {
		fields = append(fields, notify.Field{Name: "Estimated wait", Value: r.EstimatedWait, Short: true})
	}

	var body []string
	if r.Activity != nil {
		body = append(body, fmt.Sprintf("Since %s: %d escalated, %d assigned, %d resolved",
			r.PeriodStart.Format("Jan 2 15:04"),
			r.Activity[models.EventEnqueued], r.Activity[models.EventAssigned], r.Activity[models.EventResolved]))
		if n := r.Activity[models.EventNotifyFailed]; n > 0 {
			body = append(body, fmt.Sprintf("%d agent notifications failed", n))
		}
	}
	var status []string
	for _, st := range models.AgentStatuses {
		if n := r.AgentsByStatus[st]; n > 0 {
			status = append(status, fmt.Sprintf("%d %s", n, st))
		}
	}
	if len(status) > 0 {
		body = append(body, "Agents: "+strings.Join(status, ", "))
	}

	color := notify.ColorInfo
	if r.Queries[models.QueryPending] > 0 && r.AgentsWithRoom == 0 {
		color = notify.ColorCritical
	}
	return notify.Post{
		Title:  "Escalation queue digest",
		Body:   strings.Join(body, "\n"),
		Color:  color,
		Fields: fields,
	}
}
