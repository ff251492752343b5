// Package discord is a thin Discord adapter (spec.md §6 channel adapters,
// expanded): it moves text in and out over the bus and nothing else.
// Grounded on vanducng-goclaw's internal/channels/discord/discord.go for
// the discordgo session/handler shape, trimmed to the publish/consume
// contract only — no pairing, mention-gating, or reaction status.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/janus-run/janus/internal/bus"
	"github.com/janus-run/janus/internal/logger"
)

// Channel connects to Discord over the bot gateway.
type Channel struct {
	session *discordgo.Session
	msgBus  *bus.MessageBus

	mu        sync.RWMutex
	running   bool
	botUserID string
}

// New creates a Discord channel from a bot token; it does not connect yet.
func New(token string, msgBus *bus.MessageBus) (*Channel, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	c := &Channel{session: session, msgBus: msgBus}
	session.AddHandler(c.handleMessage)
	return c, nil
}

func (c *Channel) Name() string { return "discord" }

// Start opens the gateway connection and registers this channel as the
// outbound handler for "discord" messages.
func (c *Channel) Start(ctx context.Context) error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}

	c.mu.Lock()
	c.botUserID = user.ID
	c.running = true
	c.mu.Unlock()

	c.msgBus.RegisterHandler("discord", c.send)
	logger.InfoCF("discord", "channel connected", map[string]interface{}{"bot_id": user.ID})
	return nil
}

func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	return c.session.Close()
}

func (c *Channel) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Channel) send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat id for discord send")
	}
	_, err := c.session.ChannelMessageSend(msg.ChatID, msg.Content)
	return err
}

func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	c.mu.RLock()
	botUserID := c.botUserID
	c.mu.RUnlock()

	if m.Author == nil || m.Author.ID == botUserID || m.Author.Bot {
		return
	}

	msg := bus.InboundMessage{
		Channel:    "discord",
		ChatID:     m.ChannelID,
		Content:    m.Content,
		Author:     m.Author.ID,
		Timestamp:  time.Now(),
		SessionKey: "discord:" + m.ChannelID,
	}

	if err := c.msgBus.PublishInbound(context.Background(), msg); err != nil {
		logger.WarnCF("discord", "failed to publish inbound message", map[string]interface{}{"error": err.Error()})
	}
}
