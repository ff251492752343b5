// Package telegram is a thin Telegram adapter (spec.md §6 channel adapters,
// expanded): it moves text in and out over the bus and nothing else.
// Grounded on the teacher's own `github.com/mymmrac/telego` dependency and
// its pkg/tools/telegram.go call shape (telego.Bot, tu.ID(chatID)) — the
// teacher's pack only carries the forum-topic management tool built atop
// telego, not the channel's own update loop, so the loop itself is built
// against telego's documented long-polling API.
package telegram

import (
	"context"
	"fmt"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/janus-run/janus/internal/bus"
	"github.com/janus-run/janus/internal/logger"
)

// Channel connects to Telegram via long-polling.
type Channel struct {
	bot    *telego.Bot
	msgBus *bus.MessageBus

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
}

func New(token string, msgBus *bus.MessageBus) (*Channel, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{bot: bot, msgBus: msgBus}, nil
}

func (c *Channel) Name() string { return "telegram" }

// Start begins long-polling for updates and registers this channel as the
// outbound handler for "telegram" messages.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("start telegram long polling: %w", err)
	}

	c.mu.Lock()
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	c.msgBus.RegisterHandler("telegram", c.send)

	go func() {
		for update := range updates {
			c.handleUpdate(pollCtx, update)
		}
	}()

	logger.InfoCF("telegram", "channel connected", nil)
	return nil
}

func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.running = false
	return nil
}

func (c *Channel) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Channel) send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat id for telegram send")
	}
	_, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(parseChatID(msg.ChatID)), msg.Content))
	return err
}

func (c *Channel) handleUpdate(ctx context.Context, update telego.Update) {
	if update.Message == nil {
		return
	}
	m := update.Message

	msg := bus.InboundMessage{
		Channel:    "telegram",
		ChatID:     fmt.Sprintf("%d", m.Chat.ID),
		Content:    m.Text,
		Author:     fmt.Sprintf("%d", m.From.ID),
		SessionKey: fmt.Sprintf("telegram:%d", m.Chat.ID),
	}

	if err := c.msgBus.PublishInbound(ctx, msg); err != nil {
		logger.WarnCF("telegram", "failed to publish inbound message", map[string]interface{}{"error": err.Error()})
	}
}

func parseChatID(chatID string) int64 {
	var id int64
	fmt.Sscanf(chatID, "%d", &id)
	return id
}
