package server

import (
	"context"
	"testing"
	"time"
)

func TestDispatcherDeliversPokeToChannelSubscribers(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tenantStream, cleanup := dispatcher.Subscribe(ctx, []string{"tenant/tenant-a"})
	defer cleanup()
	otherStream, otherCleanup := dispatcher.Subscribe(ctx, []string{"tenant/tenant-b"})
	defer otherCleanup()

	dispatcher.Poke([]string{"tenant/tenant-a"})

	select {
	case message := <-tenantStream:
		if message.EventType != RealtimeEventPoke {
			t.Fatalf("unexpected event type %s", message.EventType)
		}
		if message.Channel != "tenant/tenant-a" {
			t.Fatalf("unexpected channel %s", message.Channel)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for poke")
	}

	select {
	case message := <-otherStream:
		t.Fatalf("poke leaked to unrelated channel: %#v", message)
	default:
	}
}

func TestDispatcherSubscribesMultipleChannelsOnOneStream(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, []string{"tenant/tenant-a", "user/user-1"})
	defer cleanup()

	dispatcher.Poke([]string{"user/user-1"})

	select {
	case message := <-stream:
		if message.Channel != "user/user-1" {
			t.Fatalf("unexpected channel %s", message.Channel)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for poke")
	}
}

func TestDispatcherCleanupStopsDelivery(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()

	stream, cleanup := dispatcher.Subscribe(context.Background(), []string{"tenant/tenant-a"})
	cleanup()

	dispatcher.Poke([]string{"tenant/tenant-a"})

	select {
	case message, ok := <-stream:
		if ok {
			t.Fatalf("unexpected delivery after cleanup: %#v", message)
		}
	default:
	}
}

func TestDispatcherDropsWhenSubscriberBufferFull(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, []string{"tenant/tenant-a"})
	defer cleanup()

	// Overrun the buffer without reading. Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			dispatcher.Poke([]string{"tenant/tenant-a"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	delivered := 0
	for {
		select {
		case <-stream:
			delivered++
			continue
		default:
		}
		break
	}
	if delivered == 0 || delivered > 16 {
		t.Fatalf("expected up to one buffer of deliveries, got %d", delivered)
	}
}

func TestDispatcherIgnoresEmptySubscription(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()

	stream, cleanup := dispatcher.Subscribe(context.Background(), nil)
	defer cleanup()

	if _, ok := <-stream; ok {
		t.Fatal("expected closed stream for empty channel list")
	}
}
