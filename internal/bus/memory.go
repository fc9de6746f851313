package bus

import (
	"context"
	"sync"
)

// MemoryBus is a process-local, channel-backed Bus used in tests in
// place of a live broker. It honors the same at-least-once, ack/nack,
// and comma-separated multi-queue consume semantics as NATSBus.
type MemoryBus struct {
	mu     sync.Mutex
	queues map[string]chan *memEnvelope
	closed bool
}

// NewMemoryBus returns an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{queues: make(map[string]chan *memEnvelope)}
}

func (b *MemoryBus) queueChan(name string) chan *memEnvelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.queues[name]
	if !ok {
		ch = make(chan *memEnvelope, 1024)
		b.queues[name] = ch
	}
	return ch
}

func (b *MemoryBus) Publish(ctx context.Context, queue string, payload []byte) error {
	if queue == "" {
		return ErrEmptyQueueList
	}
	cp := append([]byte(nil), payload...)
	select {
	case b.queueChan(queue) <- &memEnvelope{bus: b, queue: queue, payload: cp}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBus) Consume(ctx context.Context, queues string) (<-chan Envelope, error) {
	names := splitQueues(queues)
	if len(names) == 0 {
		return nil, ErrEmptyQueueList
	}
	chans := make([]chan *memEnvelope, len(names))
	for i, n := range names {
		chans[i] = b.queueChan(n)
	}

	// Fan in every listed queue's channel. Whichever queue has a ready
	// message wins the next delivery, which is a fair round-robin in
	// expectation across the set.
	out := make(chan Envelope)
	var wg sync.WaitGroup
	wg.Add(len(chans))
	for _, ch := range chans {
		ch := ch
		go func() {
			defer wg.Done()
			for {
				select {
				case env, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- env:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, ch := range b.queues {
		close(ch)
	}
	return nil
}

type memEnvelope struct {
	bus      *MemoryBus
	queue    string
	payload  []byte
	requeued bool
}

func (e *memEnvelope) Payload() []byte { return e.payload }
func (e *memEnvelope) Queue() string   { return e.queue }

func (e *memEnvelope) Ack() error {
	return nil
}

func (e *memEnvelope) Nack(requeue bool) error {
	e.bus.mu.Lock()
	closed := e.bus.closed
	e.bus.mu.Unlock()
	if closed || !requeue {
		return nil
	}
	return e.bus.Publish(context.Background(), e.queue, e.payload)
}

// QueueNames reports the distinct queue names currently known to b, for
// tests that want to assert on routing without consuming.
func (b *MemoryBus) QueueNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.queues))
	for n := range b.queues {
		names = append(names, n)
	}
	return names
}
