// Package messaging implements the in-process MessageBus (spec §4.3): a
// per-team agent directory plus best-effort delivery of shutdown
// requests and broadcast notices. No source for this component survived
// the original's distillation into this pack — original_source/
// references a messaging.MessageBus from team_lifecycle.py's imports,
// but the module itself isn't present, so this is built from the
// specification's description of the contract and that usage pattern,
// in the teacher's channel-based idiom (see natsbus.go for the optional
// networked transport built the same way as the teacher's natsctx).
package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/swarmguard/agentcore/internal/models"
	"github.com/swarmguard/agentcore/internal/otelinit"
)

// Message is one envelope delivered to a registered agent's inbox.
type Message struct {
	Type      string
	From      string
	To        string
	Payload   any
}

// inboxCapacity bounds each agent's channel so a stalled agent cannot
// block the sender; a full inbox is reported as a failed delivery rather
// than blocking the bus.
const inboxCapacity = 32

// Bus is the MessageBus contract (spec §4.3): a per-team agent directory
// plus best-effort delivery of direct messages, shutdown requests, and
// broadcasts. LocalBus satisfies it in-process; NatsBus (natsbus.go)
// satisfies it over a shared broker when a team enables peer-to-peer
// messaging across process boundaries.
type Bus interface {
	RegisterAgent(agentID string) error
	UnregisterAgent(agentID string)
	Inbox(agentID string) (<-chan Message, bool)
	Send(ctx context.Context, to string, msg Message) models.DeliveryResult
	SendShutdown(ctx context.Context, from, agentID, reason string) models.DeliveryResult
	Broadcast(ctx context.Context, from, excludeAgentID string, msg Message) map[string]models.DeliveryResult
	RegisteredCount() int
}

// LocalBus is the in-memory MessageBus for one team.
type LocalBus struct {
	mu      sync.Mutex
	inboxes map[string]chan Message
}

var _ Bus = (*LocalBus)(nil)

// New constructs an empty LocalBus.
func New() *LocalBus {
	return &LocalBus{inboxes: make(map[string]chan Message)}
}

// RegisterAgent opens an inbox for agentID. Re-registering replaces the
// inbox, dropping any messages still queued in the old one. Always
// succeeds; the error return exists to satisfy Bus alongside NatsBus,
// whose registration can fail on the underlying subscribe.
func (b *LocalBus) RegisterAgent(agentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inboxes[agentID] = make(chan Message, inboxCapacity)
	return nil
}

// UnregisterAgent closes and removes agentID's inbox. Safe to call more
// than once.
func (b *LocalBus) UnregisterAgent(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.inboxes[agentID]; ok {
		close(ch)
		delete(b.inboxes, agentID)
	}
}

// Inbox returns the receive-only channel for agentID, or false if it is
// not registered.
func (b *LocalBus) Inbox(agentID string) (<-chan Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.inboxes[agentID]
	return ch, ok
}

// Send delivers msg to one agent. Delivery is best-effort: a full or
// missing inbox yields Failed rather than blocking the caller.
func (b *LocalBus) Send(ctx context.Context, to string, msg Message) models.DeliveryResult {
	_, end := otelinit.WithSpan(ctx, "messaging.send")
	defer end()

	b.mu.Lock()
	ch, ok := b.inboxes[to]
	b.mu.Unlock()

	if !ok {
		return models.DeliveryResult{Status: models.MessageFailed, Error: fmt.Sprintf("messaging: agent %s not registered", to)}
	}

	select {
	case ch <- msg:
		return models.DeliveryResult{Status: models.MessageDelivered}
	default:
		return models.DeliveryResult{Status: models.MessageFailed, Error: fmt.Sprintf("messaging: inbox full for agent %s", to)}
	}
}

// SendShutdown asks agentID to terminate. TeamLifecycleManager treats a
// Failed result as "agent already gone," not as a disband error.
func (b *LocalBus) SendShutdown(ctx context.Context, from, agentID, reason string) models.DeliveryResult {
	return b.Send(ctx, agentID, Message{Type: "shutdown_request", From: from, To: agentID, Payload: reason})
}

// Broadcast delivers msg to every currently registered agent except
// excludeAgentID (pass "" to exclude none), returning delivery results
// keyed by agent id.
func (b *LocalBus) Broadcast(ctx context.Context, from, excludeAgentID string, msg Message) map[string]models.DeliveryResult {
	b.mu.Lock()
	targets := make([]string, 0, len(b.inboxes))
	for id := range b.inboxes {
		if id != excludeAgentID {
			targets = append(targets, id)
		}
	}
	b.mu.Unlock()

	results := make(map[string]models.DeliveryResult, len(targets))
	for _, id := range targets {
		m := msg
		m.From = from
		m.To = id
		results[id] = b.Send(ctx, id, m)
	}
	return results
}

// RegisteredCount reports how many agents currently have an open inbox.
func (b *LocalBus) RegisteredCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inboxes)
}
