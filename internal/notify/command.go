package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/zulandar/switchboard/internal/models"
)

// Command runs a shell command for each alert, e.g.
//
//	notify-send 'Switchboard' {{.Summary}}
//
// Placeholders are replaced with shell-quoted values, so templates must not
// wrap them in quotes of their own.
type Command struct {
	Template string
	BaseURL  string
}

// Notify implements Notifier.
func (c Command) Notify(ctx context.Context, agent models.Agent, q models.EscalatedQuery) error {
	if c.Template == "" {
		return nil
	}
	cmdStr := templateAlert(c.Template, agent, q, c.BaseURL)
	out, err := exec.CommandContext(ctx, "sh", "-c", cmdStr).CombinedOutput()
	if err != nil {
		return fmt.Errorf("notify: command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// templateAlert replaces placeholders in the command template with
// shell-quoted alert values.
func templateAlert(command string, agent models.Agent, q models.EscalatedQuery, baseURL string) string {
	r := strings.NewReplacer(
		"{{.AgentID}}", shellQuote(agent.ID),
		"{{.AgentName}}", shellQuote(agent.Name),
		"{{.AgentEmail}}", shellQuote(agent.Email),
		"{{.AgentPhone}}", shellQuote(agent.Phone),
		"{{.QueryID}}", shellQuote(q.ID),
		"{{.CustomerID}}", shellQuote(q.CustomerID),
		"{{.Priority}}", shellQuote(strconv.Itoa(q.Priority)),
		"{{.Reason}}", shellQuote(q.Reason.Title()),
		"{{.Query}}", shellQuote(q.Query),
		"{{.URL}}", shellQuote(QueryURL(baseURL, q.ID)),
		"{{.Summary}}", shellQuote(fmt.Sprintf("%s: %s (priority %d/5)", q.ID, q.Reason.Title(), q.Priority)),
	)
	return r.Replace(command)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
