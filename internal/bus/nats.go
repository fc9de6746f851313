package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus is a JetStream-backed Bus. Each queue name maps 1:1 to a
// JetStream stream (subject = queue name), consumed in one of two
// styles (§4.2): "polling", a durable pull consumer this process drives
// with repeated Fetch calls, or "callback", a durable push consumer
// whose deliveries the nats.go client dispatches onto a bound channel
// in its own background goroutine. Both expose the same Envelope
// interface, so upstream code is consume-style agnostic.
type NATSBus struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	fetchTimeout  time.Duration
	fetchBatch    int
	consumerGroup string
	consumeStyle  string
}

// Options configures NATSBus behavior beyond the connection itself.
type Options struct {
	// FetchTimeout bounds how long a pull-consumer Fetch call waits for
	// new messages before the Consume loop polls again.
	FetchTimeout time.Duration
	// FetchBatch is the max number of messages pulled per Fetch call in
	// the polling style, or the push consumer's MaxAckPending (the
	// JetStream analogue of broker prefetch_count) in the callback style.
	FetchBatch int
	// ConsumerGroup names the durable consumer shared by all processes
	// consuming the same queue, so redelivery lands on any live worker.
	ConsumerGroup string
	// ConsumeStyle selects "polling" (default, basic_get-style Fetch
	// loop) or "callback" (broker-driven ChanSubscribe push consumer).
	ConsumeStyle string
}

func (o Options) withDefaults() Options {
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 2 * time.Second
	}
	if o.FetchBatch <= 0 {
		o.FetchBatch = 10
	}
	if o.ConsumerGroup == "" {
		o.ConsumerGroup = "tileindex"
	}
	if o.ConsumeStyle == "" {
		o.ConsumeStyle = "polling"
	}
	return o
}

// NewNATSBus dials url and returns a JetStream-backed Bus.
func NewNATSBus(url string, opts Options) (*NATSBus, error) {
	opts = opts.withDefaults()
	conn, err := nats.Connect(url, nats.Name("tileindex"))
	if err != nil {
		return nil, fmt.Errorf("bus: connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: jetstream context: %w", err)
	}
	return &NATSBus{
		conn: conn, js: js,
		fetchTimeout: opts.FetchTimeout, fetchBatch: opts.FetchBatch,
		consumerGroup: opts.ConsumerGroup, consumeStyle: opts.ConsumeStyle,
	}, nil
}

func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}

func (b *NATSBus) ensureStream(queue string) error {
	_, err := b.js.StreamInfo(streamName(queue))
	if err == nil {
		return nil
	}
	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:     streamName(queue),
		Subjects: []string{queue},
		Storage:  nats.FileStorage,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("bus: add stream %s: %w", queue, err)
	}
	return nil
}

func streamName(queue string) string {
	return "Q_" + strings.ReplaceAll(queue, ".", "_")
}

// Publish persists payload on the JetStream stream backing queue,
// creating the stream on first use.
func (b *NATSBus) Publish(ctx context.Context, queue string, payload []byte) error {
	if queue == "" {
		return ErrEmptyQueueList
	}
	if err := b.ensureStream(queue); err != nil {
		return err
	}
	_, err := b.js.Publish(queue, payload, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("bus: publish to %s: %w", queue, err)
	}
	return nil
}

// Consume dispatches to the configured consume style: "callback" (a
// push subscription the client drives) or "polling" (a pull consumer
// this process drives with repeated Fetch calls). Both fan deliveries
// from the listed queues into a single Envelope channel.
func (b *NATSBus) Consume(ctx context.Context, queues string) (<-chan Envelope, error) {
	if b.consumeStyle == "callback" {
		return b.consumeCallback(ctx, queues)
	}
	return b.consumePolling(ctx, queues)
}

// consumeCallback opens a durable push consumer per listed queue via
// ChanSubscribe: nats.go services the subscription's heartbeats and
// dispatch in its own background goroutine and delivers messages onto
// a bound channel, which this method re-wraps as Envelopes and fans
// into a single output channel.
func (b *NATSBus) consumeCallback(ctx context.Context, queues string) (<-chan Envelope, error) {
	names := splitQueues(queues)
	if len(names) == 0 {
		return nil, ErrEmptyQueueList
	}

	out := make(chan Envelope)
	subs := make([]*nats.Subscription, 0, len(names))
	var wg sync.WaitGroup

	cleanup := func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}

	for _, name := range names {
		if err := b.ensureStream(name); err != nil {
			cleanup()
			return nil, err
		}
		msgCh := make(chan *nats.Msg, b.fetchBatch)
		sub, err := b.js.ChanSubscribe(name, msgCh,
			nats.Durable(b.consumerGroup),
			nats.ManualAck(),
			nats.BindStream(streamName(name)),
			nats.MaxAckPending(b.fetchBatch),
		)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("bus: chan subscribe %s: %w", name, err)
		}
		subs = append(subs, sub)

		wg.Add(1)
		go func(queue string, ch chan *nats.Msg) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case m, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- &natsEnvelope{msg: m, queue: queue}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(name, msgCh)
	}

	go func() {
		wg.Wait()
		cleanup()
		close(out)
	}()
	return out, nil
}

// consumePolling opens a durable pull consumer per listed queue and
// fans their deliveries into a single channel, round-robining across
// queues on each poll so no one queue starves the others.
func (b *NATSBus) consumePolling(ctx context.Context, queues string) (<-chan Envelope, error) {
	names := splitQueues(queues)
	if len(names) == 0 {
		return nil, ErrEmptyQueueList
	}

	subs := make([]*nats.Subscription, 0, len(names))
	for _, name := range names {
		if err := b.ensureStream(name); err != nil {
			return nil, err
		}
		sub, err := b.js.PullSubscribe(name, b.consumerGroup, nats.BindStream(streamName(name)))
		if err != nil {
			return nil, fmt.Errorf("bus: pull subscribe %s: %w", name, err)
		}
		subs = append(subs, sub)
	}

	out := make(chan Envelope)
	go func() {
		defer close(out)
		defer func() {
			for _, sub := range subs {
				_ = sub.Unsubscribe()
			}
		}()
		idx := 0
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			sub := subs[idx%len(subs)]
			idx++
			msgs, err := sub.Fetch(b.fetchBatch, nats.MaxWait(b.fetchTimeout))
			if err != nil {
				// Timeout just means no messages on this queue this round.
				continue
			}
			for _, m := range msgs {
				select {
				case out <- &natsEnvelope{msg: m, queue: m.Subject}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func splitQueues(queues string) []string {
	var out []string
	for _, q := range strings.Split(queues, ",") {
		q = strings.TrimSpace(q)
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}

type natsEnvelope struct {
	msg   *nats.Msg
	queue string
}

func (e *natsEnvelope) Payload() []byte { return e.msg.Data }
func (e *natsEnvelope) Queue() string   { return e.queue }

func (e *natsEnvelope) Ack() error {
	err := e.msg.Ack()
	if err == nats.ErrMsgNotBound || err == nats.ErrMsgNoReply || err == nats.ErrConnectionClosed {
		return nil
	}
	return err
}

func (e *natsEnvelope) Nack(requeue bool) error {
	if !requeue {
		err := e.msg.Term()
		if err == nats.ErrMsgNotBound || err == nats.ErrMsgNoReply || err == nats.ErrConnectionClosed {
			return nil
		}
		return err
	}
	err := e.msg.Nak()
	if err == nats.ErrMsgNotBound || err == nats.ErrMsgNoReply || err == nats.ErrConnectionClosed {
		return nil
	}
	return err
}
