package messaging

import (
	"context"
	"testing"

	"github.com/swarmguard/agentcore/internal/models"
)

func TestSendDeliversToRegisteredInbox(t *testing.T) {
	b := New()
	ctx := context.Background()
	b.RegisterAgent("agent-1")

	result := b.Send(ctx, "agent-1", Message{Type: "ping", From: "tester"})
	if result.Status != models.MessageDelivered {
		t.Fatalf("expected delivered, got %+v", result)
	}

	inbox, ok := b.Inbox("agent-1")
	if !ok {
		t.Fatal("expected inbox to exist")
	}
	msg := <-inbox
	if msg.Type != "ping" {
		t.Fatalf("expected ping, got %+v", msg)
	}
}

func TestSendToUnregisteredAgentFails(t *testing.T) {
	b := New()
	result := b.Send(context.Background(), "ghost", Message{Type: "ping"})
	if result.Status != models.MessageFailed {
		t.Fatalf("expected failed delivery to unregistered agent, got %+v", result)
	}
}

func TestSendToFullInboxFails(t *testing.T) {
	b := New()
	ctx := context.Background()
	b.RegisterAgent("agent-1")

	for i := 0; i < inboxCapacity; i++ {
		if r := b.Send(ctx, "agent-1", Message{Type: "fill"}); r.Status != models.MessageDelivered {
			t.Fatalf("expected fill %d to deliver, got %+v", i, r)
		}
	}
	r := b.Send(ctx, "agent-1", Message{Type: "overflow"})
	if r.Status != models.MessageFailed {
		t.Fatalf("expected overflow delivery to fail once inbox is full, got %+v", r)
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	b := New()
	ctx := context.Background()
	b.RegisterAgent("a")
	b.RegisterAgent("b")
	b.RegisterAgent("c")

	results := b.Broadcast(ctx, "a", "a", Message{Type: "notice"})
	if len(results) != 2 {
		t.Fatalf("expected broadcast to 2 agents excluding sender, got %d", len(results))
	}
	if _, ok := results["a"]; ok {
		t.Fatal("sender should not receive its own broadcast")
	}
}

func TestUnregisterAgentIsIdempotent(t *testing.T) {
	b := New()
	b.RegisterAgent("a")
	b.UnregisterAgent("a")
	b.UnregisterAgent("a")

	if b.RegisteredCount() != 0 {
		t.Fatalf("expected 0 registered agents, got %d", b.RegisteredCount())
	}
	if _, ok := b.Inbox("a"); ok {
		t.Fatal("expected no inbox after unregister")
	}
}

func TestSendShutdownWrapsReason(t *testing.T) {
	b := New()
	ctx := context.Background()
	b.RegisterAgent("agent-1")

	result := b.SendShutdown(ctx, "supervisor", "agent-1", "team disbanding")
	if result.Status != models.MessageDelivered {
		t.Fatalf("expected delivered, got %+v", result)
	}
	inbox, _ := b.Inbox("agent-1")
	msg := <-inbox
	if msg.Type != "shutdown_request" || msg.Payload != "team disbanding" {
		t.Fatalf("unexpected shutdown message: %+v", msg)
	}
}
