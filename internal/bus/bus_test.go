package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStreamToNoHandlerRegistered(t *testing.T) {
	b := NewMessageBus(10)
	if err := b.StreamTo(context.Background(), "telegram", "chat-1", "chunk", "hi"); err == nil {
		t.Fatal("expected error when no handler is registered")
	}
}

func TestStreamToDeliversToHandler(t *testing.T) {
	b := NewMessageBus(10)
	var got OutboundMessage
	b.RegisterHandler("telegram", func(ctx context.Context, msg OutboundMessage) error {
		got = msg
		return nil
	})

	if err := b.StreamTo(context.Background(), "telegram", "chat-1", "chunk", "hello"); err != nil {
		t.Fatalf("StreamTo() error: %v", err)
	}
	if got.Content != "hello" || got.Type != "chunk" || got.ChatID != "chat-1" {
		t.Fatalf("unexpected delivered message: %+v", got)
	}
}

// TestStreamToSerializesPerDestination asserts concurrent StreamTo calls for
// the same (channel, chatID) never run the handler concurrently with
// itself.
func TestStreamToSerializesPerDestination(t *testing.T) {
	b := NewMessageBus(10)

	var mu sync.Mutex
	active := 0
	maxActive := 0
	b.RegisterHandler("telegram", func(ctx context.Context, msg OutboundMessage) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.StreamTo(context.Background(), "telegram", "same-chat", "chunk", "x")
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxActive != 1 {
		t.Fatalf("expected calls to the same destination to serialize, max concurrent was %d", maxActive)
	}
}
