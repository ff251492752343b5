package bus

import (
	"context"
	"testing"
	"time"
)

func TestBoundedChannelFIFO(t *testing.T) {
	ch := NewBoundedChannel[int](10)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := ch.Publish(ctx, i); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		got, err := ch.Consume(ctx)
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if got != i {
			t.Fatalf("expected %d, got %d", i, got)
		}
	}
}

func TestBoundedChannelDirectHandoff(t *testing.T) {
	ch := NewBoundedChannel[string](1)
	ctx := context.Background()

	resultCh := make(chan string, 1)
	go func() {
		v, err := ch.Consume(ctx)
		if err != nil {
			t.Errorf("consume: %v", err)
			return
		}
		resultCh <- v
	}()

	// give the consumer a moment to park
	time.Sleep(20 * time.Millisecond)
	if ch.PendingConsumers() != 1 {
		t.Fatalf("expected 1 pending consumer, got %d", ch.PendingConsumers())
	}

	if err := ch.Publish(ctx, "hello"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case v := <-resultCh:
		if v != "hello" {
			t.Fatalf("expected hello, got %s", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for direct hand-off")
	}

	if ch.Depth() != 0 {
		t.Fatalf("expected depth 0 after direct hand-off, got %d", ch.Depth())
	}
}

func TestBoundedChannelBackpressure(t *testing.T) {
	const capacity = 3
	ch := NewBoundedChannel[int](capacity)
	ctx := context.Background()

	for i := 0; i < capacity; i++ {
		if err := ch.Publish(ctx, i); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	done := make(chan struct{})
	go func() {
		_ = ch.Publish(ctx, 999)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("(capacity+1)th publish should not have completed without a consume")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := ch.Consume(ctx); err != nil {
		t.Fatalf("consume: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock after a consume")
	}
}

func TestBoundedChannelCancellation(t *testing.T) {
	ch := NewBoundedChannel[int](1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ch.Consume(ctx); err != ErrCancelled {
		t.Fatalf("expected ErrCancelled on pre-cancelled consume, got %v", err)
	}
	if err := ch.Publish(ctx, 1); err != ErrCancelled {
		t.Fatalf("expected ErrCancelled on pre-cancelled publish, got %v", err)
	}

	// Now test cancellation of an in-flight suspended call.
	ch2 := NewBoundedChannel[int](1)
	ctx2, cancel2 := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := ch2.Consume(ctx2)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel2()

	select {
	case err := <-errCh:
		if err != ErrCancelled {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancellation did not unblock suspended consume")
	}
}
