// Package pubsub implements the Pubsub Subsystem (§4.8) over NATS core
// pub/sub, the transport WessleyAI-wessley-mvp's ingest pipeline uses
// for the same fire-and-forget fan-out shape a bus:// topic needs.
package pubsub

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/canfetch/adapter/pkg/fetch"
)

// fromHeader carries the publishing peer's local id alongside the
// message body via nats.Header, without touching the published payload
// bytes.
const fromHeader = "Canfetch-From"

// Bus is a NATS-backed fetch.PubsubAPI.
type Bus struct {
	nc      *nats.Conn
	localID string

	mu   sync.RWMutex
	subs map[string]int
}

// Connect dials a NATS server at url and assigns this peer a random
// local id.
func Connect(url string) (*Bus, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Bus{nc: nc, localID: uuid.NewString(), subs: map[string]int{}}, nil
}

// LocalID implements fetch.PubsubAPI.
func (b *Bus) LocalID() string { return b.localID }

// IsSubscribed implements fetch.PubsubAPI.
func (b *Bus) IsSubscribed(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subs[topic] > 0
}

// Publish implements fetch.PubsubAPI.
func (b *Bus) Publish(ctx context.Context, topic string, data []byte) error {
	msg := &nats.Msg{
		Subject: topic,
		Data:    data,
		Header:  nats.Header{fromHeader: []string{b.localID}},
	}
	return b.nc.PublishMsg(msg)
}

// Subscribe implements fetch.PubsubAPI.
func (b *Bus) Subscribe(ctx context.Context, topic string) (fetch.Subscription, error) {
	sub, err := b.nc.SubscribeSync(topic)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.subs[topic]++
	b.mu.Unlock()
	return &subscription{bus: b, topic: topic, sub: sub}, nil
}

// Close closes the underlying NATS connection without draining it.
func (b *Bus) Close() {
	b.nc.Close()
}

// Connected reports whether the NATS connection is currently up, for
// the health endpoint.
func (b *Bus) Connected() bool {
	return b.nc.IsConnected()
}

type subscription struct {
	bus   *Bus
	topic string
	sub   *nats.Subscription
	seq   uint64
	once  sync.Once
}

// Next implements fetch.Subscription.
func (s *subscription) Next(ctx context.Context) (*fetch.Message, error) {
	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, err
	}
	from := s.bus.localID
	if msg.Header != nil {
		if v := msg.Header.Get(fromHeader); v != "" {
			from = v
		}
	}
	seq := atomic.AddUint64(&s.seq, 1)
	return &fetch.Message{Seq: seq, From: from, Data: msg.Data}, nil
}

// Unsubscribe implements fetch.Subscription, safe to call more than
// once (invariant 4).
func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Unsubscribe()
		s.bus.mu.Lock()
		s.bus.subs[s.topic]--
		s.bus.mu.Unlock()
	})
	return err
}
