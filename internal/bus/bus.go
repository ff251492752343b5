package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/janus-run/janus/internal/logger"
	"github.com/janus-run/janus/internal/media"
)

// Scope identifies the memory-tenancy dimension carried on an inbound
// message (spec.md §3 InboundMessage.scope).
type Scope struct {
	Kind string // "user" | "family"
	ID   string
}

// UserBinding resolves an inbound message to a known user identity.
type UserBinding struct {
	UserID          string
	DisplayName     string
	ChannelUserID   string
	ChannelUsername string
}

// InboundMessage is produced by channel adapters or the scheduler; immutable
// once created; discarded after handling (spec.md §3).
type InboundMessage struct {
	ID          string
	Channel     string
	ChatID      string
	Content     string
	Author      string
	Timestamp   time.Time
	ContextMode string // "full" | "minimal", empty means default full
	User        *UserBinding
	Scope       *Scope
	Media       []media.ContentPart
	Metadata    map[string]string
	SessionKey  string
}

// OutboundMessage is produced by the agent loop; delivery is at-most-once
// (spec.md §3).
type OutboundMessage struct {
	ChatID    string
	Channel   string
	Content   string
	Timestamp time.Time
	Type      string // "message" | "chunk" | "stream_end"
	Metadata  map[string]string
}

// Handler delivers an outbound message to a concrete channel adapter.
type Handler func(ctx context.Context, msg OutboundMessage) error

// MessageBus holds one inbound and one outbound bounded channel, a
// name→handler table, and the dispatcher (spec.md §4.2).
type MessageBus struct {
	inbound  *BoundedChannel[InboundMessage]
	outbound *BoundedChannel[OutboundMessage]

	mu       sync.RWMutex
	handlers map[string]Handler

	streamMu sync.Map // (channel,chatID) -> *sync.Mutex, serializes StreamTo per destination
}

// NewMessageBus creates a bus with the given queue capacity for both queues
// (spec.md §5 default 100).
func NewMessageBus(capacity int) *MessageBus {
	return &MessageBus{
		inbound:  NewBoundedChannel[InboundMessage](capacity),
		outbound: NewBoundedChannel[OutboundMessage](capacity),
		handlers: make(map[string]Handler),
	}
}

// RegisterHandler associates a channel name with its delivery handler.
func (b *MessageBus) RegisterHandler(channel string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = h
}

// PublishInbound enqueues an inbound message, blocking under backpressure.
func (b *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	return b.inbound.Publish(ctx, msg)
}

// ConsumeInbound is the agent loop's single-consumer read of inbound
// messages. ok is false when the context was cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	msg, err := b.inbound.Consume(ctx)
	return msg, err == nil
}

// PublishOutbound enqueues an outbound message for the dispatcher.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	return b.outbound.Publish(ctx, msg)
}

// StreamTo is the high-frequency streaming bypass: it invokes the
// registered handler directly, skipping the outbound queue entirely. Calls
// for the same (channel, chatID) are serialized against each other via
// streamMu so that out-of-order delivery of a fast-talking agent loop's
// chunks can't reorder a single recipient's stream (spec.md §4.2, §9 open
// question); different destinations still run fully concurrently.
func (b *MessageBus) StreamTo(ctx context.Context, channel, chatID string, msgType, content string) error {
	destMu, _ := b.streamMu.LoadOrStore(channel+"\x00"+chatID, &sync.Mutex{})
	mu := destMu.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	b.mu.RLock()
	h, ok := b.handlers[channel]
	b.mu.RUnlock()
	if !ok {
		logger.WarnCF("bus", "streamTo: no handler registered", map[string]interface{}{"channel": channel})
		return fmt.Errorf("no handler registered for channel %q", channel)
	}
	return h(ctx, OutboundMessage{
		Channel:   channel,
		ChatID:    chatID,
		Content:   content,
		Type:      msgType,
		Timestamp: time.Now(),
	})
}

// RunDispatcher loops: consume outbound, look up handler, invoke it. On a
// missing handler it logs and drops; on handler error it logs and
// continues. Best-effort delivery, no retries (spec.md §4.2).
func (b *MessageBus) RunDispatcher(ctx context.Context) {
	for {
		msg, err := b.outbound.Consume(ctx)
		if err != nil {
			return
		}

		b.mu.RLock()
		h, ok := b.handlers[msg.Channel]
		b.mu.RUnlock()

		if !ok {
			logger.WarnCF("bus", "dispatch: no handler registered, dropping message", map[string]interface{}{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
			})
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorCF("bus", "dispatch: handler panicked", map[string]interface{}{
						"channel": msg.Channel,
						"error":   fmt.Sprintf("%v", r),
					})
				}
			}()
			if err := h(ctx, msg); err != nil {
				logger.ErrorCF("bus", "dispatch: handler returned error", map[string]interface{}{
					"channel": msg.Channel,
					"chat_id": msg.ChatID,
					"error":   err.Error(),
				})
			}
		}()
	}
}

// InboundDepth and OutboundDepth expose queue depth for observability.
func (b *MessageBus) InboundDepth() int  { return b.inbound.Depth() }
func (b *MessageBus) OutboundDepth() int { return b.outbound.Depth() }
