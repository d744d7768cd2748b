// Package events publishes token-refreshed notifications so other processes
// sharing a token store can react to a regeneration.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aussiebroadwan/splatauth/pkg/tokens"
)

// Topic carries every token event.
const Topic = "splatauth.tokens"

// TokenRefreshed is the wire form of tokens.Event. It never contains a
// token value.
type TokenRefreshed struct {
	RegenID     string    `json:"regen_id"`
	Kind        string    `json:"kind"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	Fingerprint string    `json:"fingerprint"`
}

// Publisher implements tokens.Notifier on top of a Watermill publisher.
type Publisher struct {
	publisher message.Publisher
	topic     string
}

var _ tokens.Notifier = (*Publisher)(nil)

// NewPublisher creates a Publisher writing to Topic.
func NewPublisher(publisher message.Publisher) *Publisher {
	return &Publisher{
		publisher: publisher,
		topic:     Topic,
	}
}

// TokenRefreshed publishes ev.
func (p *Publisher) TokenRefreshed(ctx context.Context, ev tokens.Event) error {
	payload, err := json.Marshal(TokenRefreshed{
		RegenID:     ev.RegenID,
		Kind:        ev.Kind.String(),
		IssuedAt:    ev.IssuedAt.UTC(),
		ExpiresAt:   ev.ExpiresAt.UTC(),
		Fingerprint: ev.Fingerprint,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(ev.RegenID, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close closes the underlying publisher.
func (p *Publisher) Close() error { return p.publisher.Close() }

// Decode reads a TokenRefreshed from msg.
func Decode(msg *message.Message) (TokenRefreshed, error) {
	var ev TokenRefreshed
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return TokenRefreshed{}, fmt.Errorf("failed to decode event %s: %w", msg.UUID, err)
	}
	return ev, nil
}

// Watch subscribes to Topic and calls fn for every event until ctx is done.
// Messages that fail to decode are acked and skipped.
func Watch(ctx context.Context, subscriber message.Subscriber, fn func(TokenRefreshed)) error {
	messages, err := subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			if ev, err := Decode(msg); err == nil {
				fn(ev)
			}
			msg.Ack()
		}
	}
}
