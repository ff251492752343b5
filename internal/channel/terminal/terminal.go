// Package terminal is the interactive REPL channel (spec.md §6 "default
// action runs interactive channel"). Grounded on the teacher's own
// `github.com/chzyer/readline` go.mod dependency, never exercised anywhere
// in the retrieval pack — this is the first real consumer, built against
// readline's documented NewEx/Readline loop.
package terminal

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/janus-run/janus/internal/bus"
	"github.com/janus-run/janus/internal/logger"
)

const chatID = "terminal"

// Channel is a single-user readline-backed REPL.
type Channel struct {
	msgBus *bus.MessageBus
	rl     *readline.Instance
}

func New(msgBus *bus.MessageBus) (*Channel, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "> ",
		HistoryFile: "",
	})
	if err != nil {
		return nil, fmt.Errorf("create readline instance: %w", err)
	}
	return &Channel{msgBus: msgBus, rl: rl}, nil
}

func (c *Channel) Name() string { return "terminal" }

// Start registers the outbound handler (prints directly to the terminal)
// and blocks reading lines until ctx is cancelled or stdin closes.
func (c *Channel) Start(ctx context.Context) error {
	c.msgBus.RegisterHandler("terminal", c.send)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := c.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("readline: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		msg := bus.InboundMessage{
			Channel:    "terminal",
			ChatID:     chatID,
			Content:    line,
			SessionKey: "terminal:" + chatID,
		}
		if err := c.msgBus.PublishInbound(ctx, msg); err != nil {
			logger.WarnCF("terminal", "failed to publish inbound message", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (c *Channel) Stop(ctx context.Context) error {
	return c.rl.Close()
}

func (c *Channel) IsRunning() bool { return true }

func (c *Channel) send(ctx context.Context, msg bus.OutboundMessage) error {
	_, err := fmt.Fprintln(c.rl.Stdout(), msg.Content)
	return err
}
