package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/classifier"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/matcher"
	"github.com/zulandar/switchboard/internal/models"
)

func newClassifyCmd() *cobra.Command {
	var (
		configPath string
		confidence float64
		latency    time.Duration
		language   string
		priority   int
		rank       bool
	)

	cmd := &cobra.Command{
		Use:   "classify <query>",
		Short: "Show how a query would be classified",
		Long: "Runs the escalation rules against a query offline and prints the decision " +
			"and the rule that fired. With --rank, also scores every configured agent.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			return runClassify(cmd, cfg, query, confidence, latency, language, priority, rank)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to Switchboard config file")
	cmd.Flags().Float64Var(&confidence, "confidence", 1, "automated responder confidence (0-1)")
	cmd.Flags().DurationVar(&latency, "latency", 0, "automated responder latency")
	cmd.Flags().StringVar(&language, "language", models.DefaultLanguage, "query language")
	cmd.Flags().IntVar(&priority, "priority", 1, "query priority (1-5)")
	cmd.Flags().BoolVar(&rank, "rank", false, "score each agent for the resulting reason")
	return cmd
}

func runClassify(cmd *cobra.Command, cfg *config.Config, query string, confidence float64, latency time.Duration, language string, priority int, rank bool) error {
	out := cmd.OutOrStdout()
	d, rule := classifier.New(cfg.Classifier).Explain(query, confidence, latency)

	if !d.Escalate {
		fmt.Fprintf(out, "Escalate: %s\n", color.New(color.FgGreen).Sprint("no"))
		fmt.Fprintln(out, "The automated responder can answer this query.")
		return nil
	}
	fmt.Fprintf(out, "Escalate: %s\n", color.New(color.FgYellow).Sprint("yes"))
	fmt.Fprintf(out, "Reason:   %s (%s)\n", d.Reason, d.Reason.Title())
	fmt.Fprintf(out, "Rule:     %s\n", rule)

	if !rank {
		return nil
	}

	q := models.EscalatedQuery{
		Query:    query,
		Reason:   d.Reason,
		Priority: models.ClampPriority(priority),
		Language: language,
	}
	m := matcher.FromConfig(cfg.Matcher)
	agents := cfg.AgentModels(time.Now())
	fmt.Fprintf(out, "\nAgent scores (tags: %s):\n", strings.Join(m.Tags(d.Reason), ", "))
	best, _ := m.SelectBestAgent(q, agents)
	for _, r := range m.Rank(q, agents) {
		marker := ""
		if r.Agent.ID == best.ID {
			marker = color.New(color.FgHiMagenta).Sprint(" ← best")
		}
		fmt.Fprintf(out, "  %-10s %-16s %5.1f%s\n", r.Agent.ID, r.Agent.Name, r.Score, marker)
	}
	return nil
}
