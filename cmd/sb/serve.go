package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/digest"
	"github.com/zulandar/switchboard/internal/escalation"
	"github.com/zulandar/switchboard/internal/journal"
	"github.com/zulandar/switchboard/internal/notify"
	"github.com/zulandar/switchboard/internal/notify/discord"
	"github.com/zulandar/switchboard/internal/notify/slack"
	"github.com/zulandar/switchboard/internal/scheduler"
	"github.com/zulandar/switchboard/internal/server"
	"golang.org/x/sync/errgroup"
)

const credentialCheckTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the escalation API, assignment scheduler and digest",
		Long: "Starts the HTTP API and the assignment scheduler. When a config file is given " +
			"it is watched, and classifier and matcher changes are applied without a restart.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to Switchboard config file (built-in defaults when empty)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	out := cmd.OutOrStdout()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	jr, err := journal.Open(cfg.Journal)
	if err != nil {
		return err
	}
	if jr != nil {
		defer jr.Close()
	}

	notifier, poster, err := buildNotifiers(ctx, cfg, out)
	if err != nil {
		return err
	}

	opts := escalation.Opts{
		Config:   cfg,
		Notifier: notifier,
		Logger:   scheduler.NewLogger(cmd.ErrOrStderr(), scheduler.ParseLogLevel(cfg.Scheduler.LogLevel)),
		Out:      out,
	}
	srvOpts := server.StartOpts{Port: cfg.Server.Port, Out: out}
	var counter digest.EventCounter
	if jr != nil {
		opts.Journal = jr
		srvOpts.History = jr
		counter = jr
	}

	svc, err := escalation.New(opts)
	if err != nil {
		return err
	}
	srvOpts.Service = svc

	g, gctx := errgroup.WithContext(ctx)

	svc.Start(gctx)
	g.Go(svc.Wait)

	g.Go(func() error {
		return server.Start(gctx, srvOpts)
	})

	if cfg.Digest.Enabled {
		if poster == nil {
			fmt.Fprintln(out, "Digest enabled but no Slack or Discord channel is configured; skipping.")
		} else {
			d, err := digest.New(digest.Opts{
				Schedule: cfg.Digest.Schedule,
				Poster:   poster,
				Queue:    svc.QueueStats(),
				Agents:   svc.AgentStats(),
				Journal:  counter,
				Estimate: svc.EstimateWait,
				Out:      out,
			})
			if err != nil {
				cancel()
				g.Wait()
				return err
			}
			g.Go(func() error { return d.Run(gctx) })
		}
	}

	if configPath != "" {
		updates, err := config.NewWatcher(configPath).Watch(gctx)
		if err != nil {
			cancel()
			g.Wait()
			return err
		}
		g.Go(func() error {
			for next := range updates {
				svc.ApplyConfig(next)
				fmt.Fprintf(out, "Config reloaded from %s (classifier and matcher updated).\n", configPath)
			}
			return nil
		})
	}

	return g.Wait()
}

// buildNotifiers assembles the agent alert channels and, from the chat
// channels among them, the digest poster. poster is nil without Slack or
// Discord.
func buildNotifiers(ctx context.Context, cfg *config.Config, out io.Writer) (notify.Notifier, notify.Poster, error) {
	nc := cfg.Notify
	var (
		notifiers notify.Multi
		posters   notify.MultiPoster
	)

	if nc.Log {
		notifiers = append(notifiers, notify.Log{Out: out, BaseURL: nc.BaseURL})
	}
	if nc.Command != "" {
		notifiers = append(notifiers, notify.Command{Template: nc.Command, BaseURL: nc.BaseURL})
	}
	if nc.Slack.BotToken != "" {
		sn, err := slack.New(slack.Opts{BotToken: nc.Slack.BotToken, ChannelID: nc.Slack.ChannelID, BaseURL: nc.BaseURL})
		if err != nil {
			return nil, nil, err
		}
		checkCtx, cancel := context.WithTimeout(ctx, credentialCheckTimeout)
		err = sn.Check(checkCtx)
		cancel()
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, sn)
		posters = append(posters, sn)
	}
	if nc.Discord.BotToken != "" {
		dn, err := discord.New(discord.Opts{BotToken: nc.Discord.BotToken, ChannelID: nc.Discord.ChannelID, BaseURL: nc.BaseURL})
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, dn)
		posters = append(posters, dn)
	}

	var notifier notify.Notifier = notify.Nop{}
	switch len(notifiers) {
	case 0:
	case 1:
		notifier = notifiers[0]
	default:
		notifier = notifiers
	}

	var poster notify.Poster
	switch len(posters) {
	case 0:
	case 1:
		poster = posters[0]
	default:
		poster = posters
	}
	return notifier, poster, nil
}
