package channels

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/sipeed/ordersync/pkg/bus"
	"github.com/sipeed/ordersync/pkg/config"
	"github.com/sipeed/ordersync/pkg/logger"
)

var (
	slackChannelMention = regexp.MustCompile(`^<#([CGD][A-Z0-9]+)(\|[^>]*)?>$`)
	slackChannelID      = regexp.MustCompile(`^[CGD][A-Z0-9]{6,}$`)
)

// ParseSlackTarget extracts a channel id from a slash command argument. It
// accepts a channel mention such as <#C123|orders> or a raw channel id.
func ParseSlackTarget(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	arg := fields[0]
	if m := slackChannelMention.FindStringSubmatch(arg); m != nil {
		return m[1], true
	}
	if slackChannelID.MatchString(arg) {
		return arg, true
	}
	return "", false
}

type SlackChannel struct {
	*BaseChannel
	config config.SlackConfig
	api    *slack.Client
	socket *socketmode.Client

	postFn func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSlackChannel(cfg config.SlackConfig, messageBus *bus.MessageBus) (*SlackChannel, error) {
	if strings.TrimSpace(cfg.BotToken) == "" || strings.TrimSpace(cfg.AppToken) == "" {
		return nil, fmt.Errorf("slack bot token and app token are required")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return nil, fmt.Errorf("slack app token must start with xapp-")
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	return &SlackChannel{
		BaseChannel: NewBaseChannel("slack", messageBus, cfg.AllowFrom),
		config:      cfg,
		api:         api,
		socket:      socketmode.New(api),
		postFn:      api.PostMessageContext,
	}, nil
}

func (c *SlackChannel) Start(ctx context.Context) error {
	logger.InfoCF("slack", "Starting Slack socket mode client", map[string]any{
		"command": c.config.Command,
	})

	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test failed: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.eventLoop(runCtx)
	go func() {
		defer close(done)
		if err := c.socket.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			logger.ErrorCF("slack", "Socket mode client stopped", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	c.setRunning(true)
	logger.InfoCF("slack", "Slack bot connected", map[string]any{
		"team":    auth.Team,
		"user_id": auth.UserID,
	})
	return nil
}

func (c *SlackChannel) Stop(ctx context.Context) error {
	logger.InfoC("slack", "Stopping Slack bot")
	c.setRunning(false)

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SlackChannel) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socket.Events:
			if !ok {
				return
			}
			c.handleEvent(ctx, evt)
		}
	}
}

func (c *SlackChannel) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		logger.DebugC("slack", "Connecting to Slack with socket mode")
	case socketmode.EventTypeConnected:
		logger.InfoC("slack", "Socket mode connected")
	case socketmode.EventTypeConnectionError:
		logger.WarnC("slack", "Socket mode connection failed, retrying")
	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok || evt.Request == nil {
			return
		}
		if reply := c.handleSlashCommand(ctx, cmd); reply != "" {
			c.socket.Ack(*evt.Request, map[string]any{
				"response_type": "ephemeral",
				"text":          reply,
			})
			return
		}
		c.socket.Ack(*evt.Request)
	}
}

// handleSlashCommand queues a sync for the command and returns an ephemeral
// reply for the invoking user, or "" when none is needed.
func (c *SlackChannel) handleSlashCommand(ctx context.Context, cmd slack.SlashCommand) string {
	if cmd.Command != c.config.Command {
		logger.DebugCF("slack", "Ignoring unknown slash command", map[string]any{
			"command": cmd.Command,
		})
		return ""
	}

	target := cmd.ChannelID
	if strings.TrimSpace(cmd.Text) != "" {
		id, ok := ParseSlackTarget(cmd.Text)
		if !ok {
			return fmt.Sprintf("Could not read a channel from %q. Use %s #channel or run it in the target channel.", cmd.Text, c.config.Command)
		}
		target = id
	}

	sender := cmd.UserID
	if cmd.UserName != "" {
		sender += "|" + cmd.UserName
	}
	if !c.RequestSync(ctx, sender, target, "slack:"+cmd.Command) {
		if !c.IsAllowed(sender) {
			return "You are not allowed to run the order sync."
		}
		return "The order sync could not be queued. Try again shortly."
	}
	return ""
}

// Post sends text to channelID and returns the timestamp of the first chunk,
// which anchors the reply thread.
func (c *SlackChannel) Post(ctx context.Context, channelID, text string) (string, error) {
	chunks := splitMessage(text, slackChunkRunes)
	if len(chunks) == 0 {
		return "", fmt.Errorf("slack message is empty")
	}

	_, ts, err := c.postFn(ctx, channelID, slack.MsgOptionText(chunks[0], false))
	if err != nil {
		return "", fmt.Errorf("failed to post slack message: %w", err)
	}
	if len(chunks) > 1 {
		if err := c.Reply(ctx, channelID, ts, strings.Join(chunks[1:], "\n")); err != nil {
			return ts, err
		}
	}
	return ts, nil
}

// Reply posts text in the thread anchored at ts.
func (c *SlackChannel) Reply(ctx context.Context, channelID, ts, text string) error {
	for _, chunk := range splitMessage(text, slackChunkRunes) {
		opts := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
		if ts != "" {
			opts = append(opts, slack.MsgOptionTS(ts))
		}
		if _, _, err := c.postFn(ctx, channelID, opts...); err != nil {
			return fmt.Errorf("failed to post slack reply: %w", err)
		}
	}
	return nil
}
