package events

import (
	"context"
	"errors"
	"testing"
)

func TestPublish_NotConnected(t *testing.T) {
	var p *Publisher
	if err := p.Publish(context.Background(), "exchanges.status_changed", []byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	p = &Publisher{}
	if err := p.Publish(context.Background(), "exchanges.status_changed", []byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	p.Close()
}

func TestPublish_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Publisher{}
	if err := p.Publish(ctx, "s", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewPublisher_Unreachable(t *testing.T) {
	if _, err := NewPublisher("nats://127.0.0.1:1", nil); err == nil {
		t.Fatal("expected connection error")
	}
}
