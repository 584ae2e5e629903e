package notify

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/zulandar/switchboard/internal/models"
)

// Log writes each alert to a writer, or to the standard logger when Out is nil.
type Log struct {
	Out     io.Writer
	BaseURL string
}

// Notify implements Notifier.
func (l Log) Notify(_ context.Context, agent models.Agent, q models.EscalatedQuery) error {
	text := Assignment(agent, q, l.BaseURL).Text()
	if l.Out == nil {
		log.Printf("notify: sent to %s <%s>: query %s (priority %d/5)", agent.Name, agent.Email, q.ID, q.Priority)
		return nil
	}
	_, err := fmt.Fprintf(l.Out, "Notification sent to %s: %s\n%s", agent.Name, agent.Email, text)
	return err
}
