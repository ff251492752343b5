// Package slack is a thin Slack adapter (spec.md §6 channel adapters,
// expanded): it moves text in and out over the bus and nothing else.
// Grounded on haasonsaas-nexus's internal/channels/slack/adapter.go for the
// slack.New + socketmode.Client wiring and event-loop shape, trimmed to
// plain messages only (no block-kit, threads, or reactions).
package slack

import (
	"context"
	"fmt"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/janus-run/janus/internal/bus"
	"github.com/janus-run/janus/internal/logger"
)

// Channel connects to Slack via Socket Mode.
type Channel struct {
	client       *slack.Client
	socketClient *socketmode.Client
	msgBus       *bus.MessageBus

	mu        sync.RWMutex
	running   bool
	botUserID string
	cancel    context.CancelFunc
}

func New(botToken, appToken string, msgBus *bus.MessageBus) *Channel {
	client := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	socketClient := socketmode.New(client, socketmode.OptionDebug(false))
	return &Channel{client: client, socketClient: socketClient, msgBus: msgBus}
}

func (c *Channel) Name() string { return "slack" }

func (c *Channel) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	auth, err := c.client.AuthTestContext(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("authenticate with slack: %w", err)
	}

	c.mu.Lock()
	c.botUserID = auth.UserID
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	c.msgBus.RegisterHandler("slack", c.send)

	go c.handleEvents(runCtx)
	go func() {
		if err := c.socketClient.RunContext(runCtx); err != nil {
			logger.WarnCF("slack", "socket mode exited", map[string]interface{}{"error": err.Error()})
		}
	}()

	logger.InfoCF("slack", "channel connected", map[string]interface{}{"bot_id": auth.UserID})
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
		return fmt.Errorf("empty chat id for slack send")
	}
	_, _, err := c.client.PostMessageContext(ctx, msg.ChatID, slack.MsgOptionText(msg.Content, false))
	return err
}

func (c *Channel) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socketClient.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			if evt.Request != nil {
				c.socketClient.Ack(*evt.Request)
			}
			c.handleEventsAPI(ctx, apiEvent)
		}
	}
}

func (c *Channel) handleEventsAPI(ctx context.Context, apiEvent slackevents.EventsAPIEvent) {
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}

	c.mu.RLock()
	botUserID := c.botUserID
	c.mu.RUnlock()

	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.BotID != "" || ev.User == botUserID {
			return
		}
		if ev.SubType != "" {
			return
		}
		c.publish(ctx, ev.Channel, ev.User, ev.Text)
	case *slackevents.AppMentionEvent:
		c.publish(ctx, ev.Channel, ev.User, ev.Text)
	}
}

func (c *Channel) publish(ctx context.Context, channelID, userID, text string) {
	msg := bus.InboundMessage{
		Channel:    "slack",
		ChatID:     channelID,
		Content:    text,
		Author:     userID,
		SessionKey: "slack:" + channelID,
	}
	if err := c.msgBus.PublishInbound(ctx, msg); err != nil {
		logger.WarnCF("slack", "failed to publish inbound message", map[string]interface{}{"error": err.Error()})
	}
}
