package channels

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/sipeed/ordersync/pkg/bus"
	"github.com/sipeed/ordersync/pkg/config"
	"github.com/sipeed/ordersync/pkg/logger"
)

type TelegramChannel struct {
	*BaseChannel
	bot    *telego.Bot
	config config.TelegramConfig

	sendFn func(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTelegramChannel(cfg config.TelegramConfig, messageBus *bus.MessageBus) (*TelegramChannel, error) {
	bot, err := telego.NewBot(strings.TrimSpace(cfg.Token), telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", messageBus, cfg.AllowFrom),
		bot:         bot,
		config:      cfg,
		sendFn:      bot.SendMessage,
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)")

	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get telegram bot info: %w", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		for update := range updates {
			if update.Message != nil {
				c.handleMessage(pollCtx, update.Message)
			}
		}
	}()

	c.setRunning(true)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]any{
		"username": me.Username,
		"command":  c.config.Command,
	})
	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot")
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

// isSyncCommand reports whether text invokes command, allowing the
// "/command@botname" form Telegram uses in groups.
func isSyncCommand(text, command string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return strings.EqualFold(name, command)
}

func (c *TelegramChannel) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil || !isSyncCommand(msg.Text, c.config.Command) {
		return
	}

	sender := strconv.FormatInt(msg.From.ID, 10)
	if msg.From.Username != "" {
		sender += "|" + msg.From.Username
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	if !c.IsAllowed(sender) {
		logger.DebugCF("telegram", "Command rejected by allowlist", map[string]any{
			"sender_id": sender,
		})
		if err := c.Reply(ctx, chatID, strconv.Itoa(msg.MessageID), "You are not allowed to run the order sync."); err != nil {
			logger.WarnCF("telegram", "Failed to send rejection", map[string]any{"error": err.Error()})
		}
		return
	}
	c.RequestSync(ctx, sender, chatID, "telegram:"+c.config.Command)
}

// Post sends text to chatID and returns the id of the first message.
func (c *TelegramChannel) Post(ctx context.Context, chatID, text string) (string, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	chunks := splitMessage(text, telegramChunkRunes)
	if len(chunks) == 0 {
		return "", fmt.Errorf("telegram message is empty")
	}

	sent, err := c.sendFn(ctx, tu.Message(tu.ID(id), chunks[0]))
	if err != nil {
		return "", fmt.Errorf("failed to send telegram message: %w", err)
	}
	ref := strconv.Itoa(sent.MessageID)
	if len(chunks) > 1 {
		if err := c.Reply(ctx, chatID, ref, strings.Join(chunks[1:], "\n")); err != nil {
			return ref, err
		}
	}
	return ref, nil
}

// Reply sends text as replies to message ref.
func (c *TelegramChannel) Reply(ctx context.Context, chatID, ref, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	replyTo, _ := strconv.Atoi(ref)

	for _, chunk := range splitMessage(text, telegramChunkRunes) {
		params := tu.Message(tu.ID(id), chunk)
		if replyTo > 0 {
			params.ReplyParameters = &telego.ReplyParameters{
				MessageID:                replyTo,
				AllowSendingWithoutReply: true,
			}
		}
		if _, err := c.sendFn(ctx, params); err != nil {
			return fmt.Errorf("failed to send telegram reply: %w", err)
		}
	}
	return nil
}
