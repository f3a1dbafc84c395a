package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// handleBusGet serves GET bus://<topic>/ (§4.8): an SSE stream when the
// caller asks for text/event-stream, otherwise a JSON membership
// snapshot.
func (a *Adapter) handleBusGet(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	if !strings.Contains(strings.ToLower(req.Headers.Get("Accept")), "text/event-stream") {
		return a.busMembership(p.Host)
	}
	return a.busSubscribe(ctx, p.Host, p.Query.Get("format"))
}

func (a *Adapter) busMembership(topic string) (*Response, error) {
	pubsub := a.client.Pubsub()
	data, err := json.Marshal(struct {
		ID         string `json:"id"`
		Topic      string `json:"topic"`
		Subscribed bool   `json:"subscribed"`
	}{ID: pubsub.LocalID(), Topic: topic, Subscribed: pubsub.IsSubscribed(topic)})
	if err != nil {
		return nil, fmt.Errorf("encode bus membership: %w", err)
	}
	resp := NewResponse(200, data)
	resp.Headers.Set("Content-Type", "application/json")
	return resp, nil
}

func (a *Adapter) busSubscribe(ctx context.Context, topic, format string) (*Response, error) {
	sub, err := a.client.Pubsub().Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	go streamBus(ctx, sub, pw, format)

	resp := NewStreamingResponse(200, pr)
	resp.Headers.Set("Content-Type", "text/event-stream")
	resp.Headers.Set("Cache-Control", "no-cache")
	return resp, nil
}

// streamBus frames each received message as one SSE event until ctx is
// done or the subscription errors, unsubscribing either way (invariant
// 4).
func streamBus(ctx context.Context, sub Subscription, pw *io.PipeWriter, format string) {
	defer sub.Unsubscribe()
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		frame, encErr := formatSSEEvent(msg, format)
		if encErr != nil {
			frame = sseErrorEvent(msg.Seq, encErr)
		}
		if _, err := pw.Write(frame); err != nil {
			return
		}
	}
}

func formatSSEEvent(msg *Message, format string) ([]byte, error) {
	payload, err := encodeBusPayload(msg.Data, format)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(struct {
		From string `json:"from"`
		Data string `json:"data"`
	}{From: msg.From, Data: payload})
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %x\ndata: %s\n\n", msg.Seq, data), nil
}

func sseErrorEvent(seq uint64, err error) []byte {
	return fmt.Appendf(nil, "id: %x\nevent: error\ndata: %s\n\n", seq, err.Error())
}

func encodeBusPayload(data []byte, format string) (string, error) {
	switch strings.ToLower(format) {
	case "utf8":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("payload is not valid utf-8")
		}
		return string(data), nil
	case "json":
		if !json.Valid(data) {
			return "", fmt.Errorf("payload is not valid json")
		}
		return string(data), nil
	case "", "base64":
		return base64.StdEncoding.EncodeToString(data), nil
	default:
		return "", fmt.Errorf("unsupported bus payload format %q", format)
	}
}

// handleBusPublish serves POST bus://<topic>/: publish the request body
// verbatim.
func (a *Adapter) handleBusPublish(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	body, err := readAll(req.Body)
	if err != nil {
		return nil, NewInvalidInput("reading publish body: %v", err)
	}
	if err := a.client.Pubsub().Publish(ctx, p.Host, body); err != nil {
		return nil, err
	}
	return NewResponse(200, nil), nil
}
