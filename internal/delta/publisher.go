package delta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrChannelClosed is returned when the outbound channel is gone.
var ErrChannelClosed = errors.New("data channel closed")

// Sender delivers one payload to every connected peer, requesting
// acknowledged delivery.
type Sender interface {
	SendReliable(ctx context.Context, payload []byte) error
}

// Mirror receives a copy of every published payload (observer dashboards).
type Mirror interface {
	Broadcast(msg []byte)
}

type Publisher struct {
	mu     sync.Mutex
	sender Sender
	mirror Mirror
}

func NewPublisher(sender Sender, mirror Mirror) *Publisher {
	return &Publisher{sender: sender, mirror: mirror}
}

// Publish serializes event and sends it. Individual sends are serialized;
// ordering across independent callers is not coordinated.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.EventType(), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mirror != nil {
		p.mirror.Broadcast(payload)
	}
	if p.sender == nil {
		return ErrChannelClosed
	}
	if err := p.sender.SendReliable(ctx, payload); err != nil {
		return fmt.Errorf("publish %s event: %w", event.EventType(), err)
	}
	return nil
}

func (p *Publisher) TryPublish(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		slog.Warn("delta publish failed", "type", event.EventType(), "error", err)
	}
}
