package fetch

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeBusSubscription is a single-topic channel-backed Subscription.
type fakeBusSubscription struct {
	ch   chan *Message
	once sync.Once
	done chan struct{}
}

func newFakeBusSubscription() *fakeBusSubscription {
	return &fakeBusSubscription{ch: make(chan *Message, 4), done: make(chan struct{})}
}

func (s *fakeBusSubscription) Next(ctx context.Context) (*Message, error) {
	select {
	case m := <-s.ch:
		return m, nil
	case <-s.done:
		return nil, NewUnsupported("subscription closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeBusSubscription) Unsubscribe() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// fakeBusClient backs only Pubsub() with an in-process broker keyed by
// topic, enough to exercise membership, publish, and SSE framing
// without a live NATS connection.
type fakeBusClient struct {
	pubsub *fakeBusPubsub
}

func newFakeBusClient() *fakeBusClient {
	return &fakeBusClient{pubsub: &fakeBusPubsub{subs: map[string][]*fakeBusSubscription{}, localID: "peer-local"}}
}

func (c *fakeBusClient) Blocks() BlockAPI  { return fakeBlocks{} }
func (c *fakeBusClient) Unixfs() UnixfsAPI { return fakeUnixfs{} }
func (c *fakeBusClient) Name() NameAPI     { return nil }
func (c *fakeBusClient) Pubsub() PubsubAPI { return c.pubsub }

type fakeBusPubsub struct {
	mu      sync.Mutex
	subs    map[string][]*fakeBusSubscription
	localID string
}

func (p *fakeBusPubsub) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := newFakeBusSubscription()
	p.mu.Lock()
	p.subs[topic] = append(p.subs[topic], sub)
	p.mu.Unlock()
	return sub, nil
}

func (p *fakeBusPubsub) Publish(ctx context.Context, topic string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sub := range p.subs[topic] {
		sub.ch <- &Message{Seq: 1, From: "other-peer", Data: data}
	}
	return nil
}

func (p *fakeBusPubsub) LocalID() string { return p.localID }

func (p *fakeBusPubsub) IsSubscribed(topic string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs[topic]) > 0
}

func TestHandleBusGetMembershipDefaultsNotSubscribed(t *testing.T) {
	c := newFakeBusClient()
	a := New(c)

	resp, err := a.Fetch(&Request{Method: MethodGet, URL: "bus://room1/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	var got struct {
		ID         string `json:"id"`
		Topic      string `json:"topic"`
		Subscribed bool   `json:"subscribed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Topic != "room1" || got.Subscribed || got.ID != "peer-local" {
		t.Errorf("got %+v", got)
	}
}

func TestHandleBusPublishThenMembershipReportsSubscribed(t *testing.T) {
	c := newFakeBusClient()
	a := New(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	headers := NewHeader()
	headers.Set("Accept", "text/event-stream")
	subResp, err := a.Fetch((&Request{Method: MethodGet, URL: "bus://room1/", Headers: headers}).WithContext(ctx))
	if err != nil {
		t.Fatalf("subscribe: unexpected error: %v", err)
	}
	if subResp.Status != http.StatusOK {
		t.Fatalf("subscribe status = %d, want 200", subResp.Status)
	}
	if ct := subResp.Headers.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	pubResp, err := a.Fetch(&Request{Method: MethodPost, URL: "bus://room1/", Body: strings.NewReader("hello")})
	if err != nil {
		t.Fatalf("publish: unexpected error: %v", err)
	}
	if pubResp.Status != http.StatusOK {
		t.Errorf("publish status = %d, want 200", pubResp.Status)
	}

	reader := bufio.NewReader(subResp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading SSE frame: %v", err)
	}
	if !strings.HasPrefix(line, "id: ") {
		t.Errorf("first SSE line = %q, want an id: line", line)
	}

	membResp, err := a.Fetch(&Request{Method: MethodGet, URL: "bus://room1/"})
	if err != nil {
		t.Fatalf("membership: unexpected error: %v", err)
	}
	var got struct {
		Subscribed bool `json:"subscribed"`
	}
	if err := json.NewDecoder(membResp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Subscribed {
		t.Error("expected membership to report subscribed after an active SSE subscription")
	}
}

// TestHandleBusGetSurvivesConfiguredTimeout proves an idle bus
// subscription isn't bounded by the adapter's block/DAG timeout
// (invariant 4): a message published well after the configured
// timeout has elapsed must still reach the subscriber.
func TestHandleBusGetSurvivesConfiguredTimeout(t *testing.T) {
	c := newFakeBusClient()
	a := New(c, WithTimeout(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	headers := NewHeader()
	headers.Set("Accept", "text/event-stream")
	subResp, err := a.Fetch((&Request{Method: MethodGet, URL: "bus://room1/", Headers: headers}).WithContext(ctx))
	if err != nil {
		t.Fatalf("subscribe: unexpected error: %v", err)
	}

	time.Sleep(50 * time.Millisecond) // well past the configured timeout

	if _, err := a.Fetch(&Request{Method: MethodPost, URL: "bus://room1/", Body: strings.NewReader("late")}); err != nil {
		t.Fatalf("publish: unexpected error: %v", err)
	}

	reader := bufio.NewReader(subResp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading SSE frame after the configured timeout elapsed: %v", err)
	}
	if !strings.HasPrefix(line, "id: ") {
		t.Errorf("first SSE line = %q, want an id: line", line)
	}
}

func TestHandleBusPublishInvalidBodyStillSucceeds(t *testing.T) {
	c := newFakeBusClient()
	a := New(c)

	resp, err := a.Fetch(&Request{Method: MethodPost, URL: "bus://empty-room/", Body: strings.NewReader("")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.Status)
	}
}
