package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/escalation"
	"github.com/zulandar/switchboard/internal/models"
	"golang.org/x/term"
)

const (
	defaultTermWidth = 100
	watchInterval    = 5 * time.Second
	// Visible width of an agent row up to the expertise column.
	statusPrefixWidth = 48
)

func newStatusCmd() *cobra.Command {
	var (
		url   string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the live agent and queue dashboard",
		Long:  "Fetches the dashboard from a running Switchboard server. Use --watch for auto-refresh.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, url, watch)
		},
	}

	cmd.Flags().StringVar(&url, "url", config.DefaultBaseURL, "base URL of the Switchboard server")
	cmd.Flags().BoolVar(&watch, "watch", false, "auto-refresh every 5 seconds")
	return cmd
}

func runStatus(cmd *cobra.Command, baseURL string, watch bool) error {
	return runStatusEvery(cmd, baseURL, watch, watchInterval)
}

func runStatusEvery(cmd *cobra.Command, baseURL string, watch bool, interval time.Duration) error {
	out := cmd.OutOrStdout()
	client := &http.Client{Timeout: 10 * time.Second}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		snap, err := fetchDashboard(ctx, client, baseURL)
		if err != nil {
			if watch && ctx.Err() != nil {
				return nil
			}
			return err
		}

		if watch {
			// Clear screen.
			fmt.Fprint(out, "\033[2J\033[H")
		}
		fmt.Fprint(out, formatStatus(snap, termWidth(out)))

		if !watch {
			return nil
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func fetchDashboard(ctx context.Context, client *http.Client, baseURL string) (*escalation.Snapshot, error) {
	url := strings.TrimRight(baseURL, "/") + "/api/human-agent/dashboard"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	var body struct {
		Success bool                `json:"success"`
		Data    escalation.Snapshot `json:"data"`
		Error   string              `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("status: decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if !body.Success {
		return nil, fmt.Errorf("status: server error (HTTP %d): %s", resp.StatusCode, body.Error)
	}
	return &body.Data, nil
}

// termWidth returns the terminal width of out, or a default when out is not
// a terminal.
func termWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultTermWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultTermWidth
	}
	return w
}

func formatStatus(s *escalation.Snapshot, width int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Switchboard status (%s)\n", s.GeneratedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Queries: %d total, %d pending, %d resolved    Estimated wait: %s\n\n",
		s.TotalQueries, s.PendingQueries, s.ResolvedQueries, s.EstimatedWait)

	fmt.Fprintf(&b, "Agents: %d total, %d available, %d busy\n", s.TotalAgents, s.AvailableAgents, s.BusyAgents)
	header := fmt.Sprintf("  %-10s %-16s %-10s %-6s %s", "ID", "NAME", "STATUS", "LOAD", "EXPERTISE")
	b.WriteString(truncate(header, width) + "\n")
	expertiseWidth := width - statusPrefixWidth
	for _, a := range s.Agents {
		// Pad before colouring so escape codes do not break alignment.
		status := statusColor(a.Status).Sprintf("%-10s", a.Status)
		load := fmt.Sprintf("%d/%d", a.CurrentLoad, a.MaxLoad)
		expertise := ""
		if expertiseWidth > 0 {
			expertise = truncate(strings.Join(a.Expertise, ","), expertiseWidth)
		}
		fmt.Fprintf(&b, "  %-10s %-16s %s %-6s %s\n", a.ID, a.Name, status, load, expertise)
	}
	return b.String()
}

func statusColor(st models.AgentStatus) *color.Color {
	switch st {
	case models.AgentAvailable:
		return color.New(color.FgGreen)
	case models.AgentBusy:
		return color.New(color.FgYellow)
	case models.AgentOnBreak:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgHiBlack)
	}
}

func truncate(s string, width int) string {
	if width <= 3 || len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}
