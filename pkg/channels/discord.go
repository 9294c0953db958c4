package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/ordersync/pkg/bus"
	"github.com/sipeed/ordersync/pkg/config"
	"github.com/sipeed/ordersync/pkg/logger"
)

const sendTimeout = 10 * time.Second

type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session
	config  config.DiscordConfig

	mu      sync.Mutex
	ctx     context.Context
	command *discordgo.ApplicationCommand

	sendMessageFn func(channelID, content string) (string, error)
	sendReplyFn   func(channelID, content, replyTo string) error
	respondFn     func(interaction *discordgo.Interaction, content string) error
}

// NormalizeDiscordBotToken trims quotes and an optional "Bot " prefix that
// often come along when a token is pasted.
func NormalizeDiscordBotToken(token string) string {
	t := strings.Trim(strings.TrimSpace(token), "\"'")
	parts := strings.Fields(t)
	if len(parts) >= 2 && strings.EqualFold(parts[0], "bot") {
		return strings.Join(parts[1:], "")
	}
	return strings.TrimSpace(t)
}

func NewDiscordChannel(cfg config.DiscordConfig, messageBus *bus.MessageBus) (*DiscordChannel, error) {
	token := NormalizeDiscordBotToken(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	c := &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", messageBus, cfg.AllowFrom),
		session:     session,
		config:      cfg,
		ctx:         context.Background(),
	}
	c.sendMessageFn = func(channelID, content string) (string, error) {
		msg, err := session.ChannelMessageSend(channelID, content)
		if err != nil {
			return "", err
		}
		return msg.ID, nil
	}
	c.sendReplyFn = func(channelID, content, replyTo string) error {
		_, err := session.ChannelMessageSendReply(channelID, content, &discordgo.MessageReference{
			MessageID: replyTo,
			ChannelID: channelID,
		})
		return err
	}
	c.respondFn = func(interaction *discordgo.Interaction, content string) error {
		return session.InteractionRespond(interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: content,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
	}
	return c, nil
}

func (c *DiscordChannel) commandName() string {
	name := strings.TrimPrefix(strings.TrimSpace(c.config.Command), "/")
	if name == "" {
		return "syncorders"
	}
	return name
}

func (c *DiscordChannel) applicationCommand() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.commandName(),
		Description: "Copy order details from Shopify into the orders sheet",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionChannel,
				Name:         "channel",
				Description:  "Channel that receives the sync summary",
				Required:     false,
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
			},
		},
	}
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	c.session.AddHandler(c.handleInteraction)
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	appID := c.session.State.User.ID
	cmd, err := c.session.ApplicationCommandCreate(appID, c.config.GuildID, c.applicationCommand())
	if err != nil {
		c.session.Close()
		return fmt.Errorf("failed to register discord command /%s: %w", c.commandName(), err)
	}

	c.mu.Lock()
	c.command = cmd
	c.mu.Unlock()
	c.setRunning(true)

	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": c.session.State.User.Username,
		"command":  "/" + cmd.Name,
		"guild_id": c.config.GuildID,
	})
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)

	if c.session == nil {
		return nil
	}

	c.mu.Lock()
	cmd := c.command
	c.command = nil
	c.mu.Unlock()
	if cmd != nil && c.session.State != nil && c.session.State.User != nil {
		if err := c.session.ApplicationCommandDelete(c.session.State.User.ID, c.config.GuildID, cmd.ID); err != nil {
			logger.WarnCF("discord", "Failed to remove slash command", map[string]any{
				"error": err.Error(),
			})
		}
	}

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

func (c *DiscordChannel) getContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *DiscordChannel) handleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	reply := c.handleCommand(c.getContext(), i.Interaction)
	if reply == "" {
		return
	}
	if err := c.respondFn(i.Interaction, reply); err != nil {
		logger.WarnCF("discord", "Failed to respond to interaction", map[string]any{
			"error": err.Error(),
		})
	}
}

// handleCommand queues a sync for an application command interaction and
// returns the ephemeral response text.
func (c *DiscordChannel) handleCommand(ctx context.Context, i *discordgo.Interaction) string {
	data, ok := i.Data.(discordgo.ApplicationCommandInteractionData)
	if !ok || data.Name != c.commandName() {
		return ""
	}

	target := i.ChannelID
	for _, opt := range data.Options {
		if opt.Name != "channel" || opt.Type != discordgo.ApplicationCommandOptionChannel {
			continue
		}
		if id, ok := opt.Value.(string); ok && id != "" {
			target = id
		}
	}

	sender := discordSender(i)
	if !c.IsAllowed(sender) {
		logger.DebugCF("discord", "Command rejected by allowlist", map[string]any{
			"sender_id": sender,
		})
		return "You are not allowed to run the order sync."
	}
	if !c.RequestSync(ctx, sender, target, "discord:/"+data.Name) {
		return "The order sync could not be queued. Try again shortly."
	}
	return fmt.Sprintf("Order sync queued. The summary will be posted in <#%s>.", target)
}

func discordSender(i *discordgo.Interaction) string {
	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil {
		return ""
	}
	if user.Username == "" {
		return user.ID
	}
	return user.ID + "|" + user.Username
}

// Post sends text to channelID and returns the id of the first message.
func (c *DiscordChannel) Post(ctx context.Context, channelID, text string) (string, error) {
	if channelID == "" {
		return "", fmt.Errorf("channel ID is empty")
	}
	chunks := splitMessage(text, discordChunkRunes)
	if len(chunks) == 0 {
		return "", fmt.Errorf("discord message is empty")
	}

	var ref string
	err := c.withTimeout(ctx, func() error {
		id, err := c.sendMessageFn(channelID, chunks[0])
		if err != nil {
			return err
		}
		ref = id
		for _, chunk := range chunks[1:] {
			if err := c.sendReplyFn(channelID, chunk, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// ref may still be written by an abandoned send.
		return "", fmt.Errorf("failed to send discord message: %w", err)
	}
	return ref, nil
}

// Reply sends text as replies to the message ref.
func (c *DiscordChannel) Reply(ctx context.Context, channelID, ref, text string) error {
	chunks := splitMessage(text, discordChunkRunes)
	err := c.withTimeout(ctx, func() error {
		for _, chunk := range chunks {
			var err error
			if ref == "" {
				_, err = c.sendMessageFn(channelID, chunk)
			} else {
				err = c.sendReplyFn(channelID, chunk, ref)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to send discord reply: %w", err)
	}
	return nil
}

// withTimeout bounds a discordgo call, which takes no context of its own.
func (c *DiscordChannel) withTimeout(ctx context.Context, send func() error) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- send() }()

	select {
	case err := <-done:
		return err
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}
