package bus

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBusPublishConsume(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := b.Publish(ctx, "embed.default", []byte(`{"tile_id":"a"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	envs, err := b.Consume(ctx, "embed.default")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	select {
	case env := <-envs:
		if string(env.Payload()) != `{"tile_id":"a"}` {
			t.Fatalf("unexpected payload: %s", env.Payload())
		}
		if err := env.Ack(); err != nil {
			t.Fatalf("Ack: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for envelope")
	}
}

func TestMemoryBusPublishEmptyQueueFails(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	if err := b.Publish(context.Background(), "", []byte("x")); err != ErrEmptyQueueList {
		t.Fatalf("expected ErrEmptyQueueList, got %v", err)
	}
	if _, err := b.Consume(context.Background(), ""); err != ErrEmptyQueueList {
		t.Fatalf("expected ErrEmptyQueueList, got %v", err)
	}
}

func TestMemoryBusNackRequeueRedelivers(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := b.Publish(ctx, "embed.default", []byte("payload")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	envs, err := b.Consume(ctx, "embed.default")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	first := <-envs
	if err := first.Nack(true); err != nil {
		t.Fatalf("Nack: %v", err)
	}

	select {
	case redelivered := <-envs:
		if string(redelivered.Payload()) != "payload" {
			t.Fatalf("unexpected redelivered payload: %s", redelivered.Payload())
		}
	case <-time.After(time.Second):
		t.Fatal("expected redelivery after requeue nack")
	}
}

func TestMemoryBusMultiQueueConsumeFansIn(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := b.Publish(ctx, "embed.a", []byte("from-a")); err != nil {
		t.Fatalf("Publish a: %v", err)
	}
	if err := b.Publish(ctx, "embed.b", []byte("from-b")); err != nil {
		t.Fatalf("Publish b: %v", err)
	}

	envs, err := b.Consume(ctx, "embed.a,embed.b")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case env := <-envs:
			seen[string(env.Payload())] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fanned-in envelope")
		}
	}
	if !seen["from-a"] || !seen["from-b"] {
		t.Fatalf("expected both queues' payloads, got %v", seen)
	}
}
