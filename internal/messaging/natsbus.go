// Optional networked MessageBus transport, used instead of LocalBus when
// a team enables peer-to-peer messaging across process boundaries
// (TeamConfig.EnableP2PMessaging + NATS_URL). Grounded on the teacher's
// natsctx package: trace-context injection/extraction around a plain
// nats.Conn publish/subscribe.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/agentcore/internal/models"
)

var propagator = propagation.TraceContext{}

// NatsBus satisfies Bus over a shared NATS connection, with one subject
// per team so unrelated teams' traffic never crosses. Each registered
// agent gets a local buffered channel fed by its subject's subscription,
// so callers read from Inbox exactly as they would against LocalBus.
type NatsBus struct {
	conn    *nats.Conn
	subject string

	mu      sync.Mutex
	subs    map[string]*nats.Subscription
	inboxes map[string]chan Message
}

var _ Bus = (*NatsBus)(nil)

// NewNatsBus connects to url and scopes all traffic under subjectPrefix
// plus teamID.
func NewNatsBus(url, subjectPrefix, teamID string) (*NatsBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("messaging: nats connect: %w", err)
	}
	return &NatsBus{
		conn:    conn,
		subject: fmt.Sprintf("%s.%s", subjectPrefix, teamID),
		subs:    make(map[string]*nats.Subscription),
		inboxes: make(map[string]chan Message),
	}, nil
}

// Close drains subscriptions and closes the connection.
func (n *NatsBus) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for agentID, sub := range n.subs {
		_ = sub.Unsubscribe()
		if ch, ok := n.inboxes[agentID]; ok {
			close(ch)
		}
	}
	n.subs = make(map[string]*nats.Subscription)
	n.inboxes = make(map[string]chan Message)
	n.conn.Close()
}

// RegisterAgent subscribes agentID to its per-agent subject, delivering
// incoming messages into a local inbox channel read via Inbox. Matches
// LocalBus.RegisterAgent's signature so both satisfy Bus.
func (n *NatsBus) RegisterAgent(agentID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.subs[agentID]; ok {
		return nil
	}

	ch := make(chan Message, inboxCapacity)
	subj := fmt.Sprintf("%s.agent.%s", n.subject, agentID)
	sub, err := n.conn.Subscribe(subj, func(m *nats.Msg) {
		carrier := propagation.HeaderCarrier(m.Header)
		ctx := propagator.Extract(context.Background(), carrier)
		tracer := otel.Tracer("agentcore-nats")
		_, span := tracer.Start(ctx, "natsbus.consume", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()

		var msg Message
		if jsonErr := json.Unmarshal(m.Data, &msg); jsonErr != nil {
			return
		}
		select {
		case ch <- msg:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("messaging: nats subscribe: %w", err)
	}

	n.subs[agentID] = sub
	n.inboxes[agentID] = ch
	return nil
}

// UnregisterAgent tears down agentID's subscription and inbox. Safe to
// call more than once.
func (n *NatsBus) UnregisterAgent(agentID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.subs[agentID]; ok {
		_ = sub.Unsubscribe()
		delete(n.subs, agentID)
	}
	if ch, ok := n.inboxes[agentID]; ok {
		close(ch)
		delete(n.inboxes, agentID)
	}
}

// Inbox returns the receive-only channel for agentID, or false if it is
// not registered.
func (n *NatsBus) Inbox(agentID string) (<-chan Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.inboxes[agentID]
	return ch, ok
}

// Send publishes msg to agentID's subject with trace-context propagation.
func (n *NatsBus) Send(ctx context.Context, to string, msg Message) models.DeliveryResult {
	data, err := json.Marshal(msg)
	if err != nil {
		return models.DeliveryResult{Status: models.MessageFailed, Error: err.Error()}
	}

	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	natsMsg := &nats.Msg{
		Subject: fmt.Sprintf("%s.agent.%s", n.subject, to),
		Data:    data,
		Header:  hdr,
	}
	if err := n.conn.PublishMsg(natsMsg); err != nil {
		return models.DeliveryResult{Status: models.MessageFailed, Error: err.Error()}
	}
	return models.DeliveryResult{Status: models.MessageDelivered}
}

// SendShutdown asks agentID to terminate over the networked transport.
func (n *NatsBus) SendShutdown(ctx context.Context, from, agentID, reason string) models.DeliveryResult {
	return n.Send(ctx, agentID, Message{Type: "shutdown_request", From: from, To: agentID, Payload: reason})
}

// Broadcast delivers msg to every currently registered agent except
// excludeAgentID (pass "" to exclude none), returning delivery results
// keyed by agent id.
func (n *NatsBus) Broadcast(ctx context.Context, from, excludeAgentID string, msg Message) map[string]models.DeliveryResult {
	n.mu.Lock()
	targets := make([]string, 0, len(n.inboxes))
	for id := range n.inboxes {
		if id != excludeAgentID {
			targets = append(targets, id)
		}
	}
	n.mu.Unlock()

	results := make(map[string]models.DeliveryResult, len(targets))
	for _, id := range targets {
		m := msg
		m.From = from
		m.To = id
		results[id] = n.Send(ctx, id, m)
	}
	return results
}

// RegisteredCount reports how many agents currently have an open
// subscription.
func (n *NatsBus) RegisteredCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
