// Package slack posts assignment alerts and digests to a Slack channel.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/notify"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTestContext(ctx context.Context) (*slackapi.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Notifier posts to one Slack channel. It implements notify.Notifier and
// notify.Poster.
type Notifier struct {
	client    slackClient
	channelID string
	baseURL   string
}

// Opts holds parameters for creating a Slack Notifier.
type Opts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string
	BaseURL   string // console base for alert links
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Notifier.
func New(opts Opts) (*Notifier, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel id is required")
	}
	n := &Notifier{client: opts.Client, channelID: opts.ChannelID, baseURL: opts.BaseURL}
	if n.client == nil {
		n.client = slackapi.New(opts.BotToken)
	}
	return n, nil
}

// Check verifies the bot token.
func (n *Notifier) Check(ctx context.Context) error {
	if _, err := n.client.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	return nil
}

// Notify implements notify.Notifier.
func (n *Notifier) Notify(ctx context.Context, agent models.Agent, q models.EscalatedQuery) error {
	return n.Post(ctx, notify.Assignment(agent, q, n.baseURL))
}

// Post implements notify.Poster.
func (n *Notifier) Post(ctx context.Context, p notify.Post) error {
	opts := []slackapi.MsgOption{
		slackapi.MsgOptionText(p.Title, false),
		slackapi.MsgOptionAttachments(toAttachment(p)),
	}
	err := retryOnRateLimit(ctx, func() error {
		_, _, err := n.client.PostMessageContext(ctx, n.channelID, opts...)
		return err
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// toAttachment converts a Post to a Slack Attachment.
func toAttachment(p notify.Post) slackapi.Attachment {
	att := slackapi.Attachment{
		Fallback: p.Text(),
		Text:     p.Body,
		Color:    p.Color,
		Footer:   p.Footer,
	}
	for _, f := range p.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
