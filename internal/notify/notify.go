// Package notify delivers assignment alerts to human agents. Delivery is
// best-effort: callers log failures and never roll back an assignment.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/switchboard/internal/models"
)

// DefaultBaseURL is the agent console used in alert links.
const DefaultBaseURL = "http://localhost:8080"

// Notifier tells an agent about a query that was just assigned to them.
type Notifier interface {
	Notify(ctx context.Context, agent models.Agent, q models.EscalatedQuery) error
}

// Poster publishes a formatted message to a shared channel.
type Poster interface {
	Post(ctx context.Context, p Post) error
}

// Post is a chat-shaped message understood by every channel adapter.
type Post struct {
	Title  string
	Body   string
	Footer string
	Color  string // sidebar hint, e.g. "#36a64f"
	Fields []Field
}

// Field is a key-value pair rendered alongside a Post.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Colors used for alerts.
const (
	ColorNormal   = "#36a64f"
	ColorCritical = "#e01e5a"
	ColorInfo     = "#439fe0"
)

// Text renders the post as plain text.
func (p Post) Text() string {
	var b strings.Builder
	if p.Title != "" {
		b.WriteString(p.Title)
		b.WriteString("\n")
	}
	if len(p.Fields) > 0 {
		b.WriteString("\n")
		for _, f := range p.Fields {
			fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value)
		}
	}
	if p.Body != "" {
		b.WriteString("\n")
		b.WriteString(p.Body)
		b.WriteString("\n")
	}
	if p.Footer != "" {
		b.WriteString("\n")
		b.WriteString(p.Footer)
		b.WriteString("\n")
	}
	return b.String()
}

// QueryURL is the console link for a query.
func QueryURL(baseURL, queryID string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimRight(baseURL, "/") + "/agent/" + queryID
}

// Assignment builds the alert sent to agent for q.
func Assignment(agent models.Agent, q models.EscalatedQuery, baseURL string) Post {
	color := ColorNormal
	if q.Complexity == models.ComplexityCritical {
		color = ColorCritical
	}
	return Post{
		Title: "New customer query assigned to you:",
		Body:  "Query: " + q.Query,
		Footer: "Please respond within 15 minutes.\n\n" +
			"Access the query at: " + QueryURL(baseURL, q.ID),
		Color: color,
		Fields: []Field{
			{Name: "Query ID", Value: q.ID, Short: true},
			{Name: "Customer ID", Value: q.CustomerID, Short: true},
			{Name: "Priority", Value: fmt.Sprintf("%d/5", q.Priority), Short: true},
			{Name: "Reason", Value: q.Reason.Title(), Short: true},
			{Name: "Assigned To", Value: agent.Name, Short: true},
		},
	}
}

// PostNotifier adapts a Poster into a Notifier by posting the assignment
// alert to the shared channel.
type PostNotifier struct {
	Poster  Poster
	BaseURL string
}

// Notify implements Notifier.
func (n PostNotifier) Notify(ctx context.Context, agent models.Agent, q models.EscalatedQuery) error {
	return n.Poster.Post(ctx, Assignment(agent, q, n.BaseURL))
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier. Every notifier runs even if an earlier one fails.
func (m Multi) Notify(ctx context.Context, agent models.Agent, q models.EscalatedQuery) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, agent, q); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiPoster fans a post out to every poster.
type MultiPoster []Poster

// Post implements Poster.
func (m MultiPoster) Post(ctx context.Context, p Post) error {
	var errs []error
	for _, ps := range m {
		if err := ps.Post(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, models.Agent, models.EscalatedQuery) error { return nil }
