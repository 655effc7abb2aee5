// Package team implements the TeamLifecycleManager (spec §4.4), ported
// from the original's src/team_lifecycle.py: create → setup → (execute)
// → disband, each team owning one TaskBoard and one MessageBus for its
// lifetime. asyncio.Event shutdown acknowledgment becomes a close-once
// Go channel per agent.
package team

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmguard/agentcore/internal/agentrole"
	"github.com/swarmguard/agentcore/internal/messaging"
	"github.com/swarmguard/agentcore/internal/models"
	"github.com/swarmguard/agentcore/internal/otelinit"
	"github.com/swarmguard/agentcore/internal/taskboard"
)

// natsSubjectPrefix scopes every team's NATS traffic under one root
// subject when peer-to-peer messaging is enabled.
const natsSubjectPrefix = "agentcore.team"

// newBus picks the team's MessageBus transport: the in-process LocalBus
// by default, or a NatsBus when the team config opts into cross-process
// messaging and NATS_URL is set. Any NATS connect failure falls back to
// LocalBus rather than failing team creation, matching the teacher's
// non-fatal broker-connect idiom.
func newBus(teamID string, cfg models.TeamConfig) messaging.Bus {
	natsURL := os.Getenv("NATS_URL")
	if !cfg.EnableP2PMessaging || natsURL == "" {
		return messaging.New()
	}

	bus, err := messaging.NewNatsBus(natsURL, natsSubjectPrefix, teamID)
	if err != nil {
		slog.Warn("team: nats bus unavailable, falling back to in-process bus", "team_id", teamID, "error", err)
		return messaging.New()
	}
	return bus
}

// CreationError wraps a failure during CreateTeam or SetupTeam, after any
// partial resources have already been cleaned up.
type CreationError struct {
	Detail string
	Cause  error
}

func (e *CreationError) Error() string { return fmt.Sprintf("team: %s: %v", e.Detail, e.Cause) }
func (e *CreationError) Unwrap() error { return e.Cause }

// NotFoundError is returned for operations against an unknown team id.
type NotFoundError struct{ TeamID string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("team: not found: %s", e.TeamID) }

type resources struct {
	team     *models.Team
	bus      messaging.Bus
	board    *taskboard.TaskBoard
	shutdown map[string]chan struct{}
}

// Manager owns every team's TaskBoard and MessageBus for its lifetime.
// One Manager is shared process-wide; teams are isolated from each other
// by key, not by separate Manager instances.
type Manager struct {
	mu    sync.Mutex
	teams map[string]*resources
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{teams: make(map[string]*resources)}
}

// CreateTeam allocates a team id and its TaskBoard/MessageBus, in the
// Creating state.
func (m *Manager) CreateTeam(ctx context.Context, taskID string, cfg models.TeamConfig) (models.Team, error) {
	_, end := otelinit.WithSpan(ctx, "team.create")
	defer end()

	teamID := uuid.NewString()
	team := &models.Team{
		ID:        teamID,
		TaskID:    taskID,
		State:     models.TeamCreating,
		Config:    cfg,
		Members:   make(map[string]string),
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.teams[teamID] = &resources{
		team:     team,
		bus:      newBus(teamID, cfg),
		board:    taskboard.New(),
		shutdown: make(map[string]chan struct{}),
	}
	m.mu.Unlock()

	slog.Info("team created", "team_id", teamID, "task_id", taskID)
	return *team, nil
}

// SetupTeam registers one agent per role, transitioning Creating -> Ready.
// On any registration failure, every partial registration from this call
// is rolled back before the error is returned.
func (m *Manager) SetupTeam(ctx context.Context, teamID string, roles []agentrole.Role) error {
	_, end := otelinit.WithSpan(ctx, "team.setup")
	defer end()

	res, err := m.lookup(teamID)
	if err != nil {
		return err
	}

	registered := make([]string, 0, len(roles))
	for _, role := range roles {
		agentID := fmt.Sprintf("agent-%s", uuid.NewString()[:8])
		if err := res.bus.RegisterAgent(agentID); err != nil {
			for _, rolledBack := range registered {
				res.bus.UnregisterAgent(rolledBack)
				delete(res.team.Members, rolledBack)
				delete(res.shutdown, rolledBack)
			}
			return &CreationError{Detail: fmt.Sprintf("register agent for role %s", role.Name), Cause: err}
		}
		res.team.Members[agentID] = role.Name
		res.shutdown[agentID] = make(chan struct{})
		registered = append(registered, agentID)
	}

	res.team.State = models.TeamReady
	slog.Info("team setup complete", "team_id", teamID, "agents", len(roles))
	return nil
}

// GetTeamStatus returns the current Team snapshot.
func (m *Manager) GetTeamStatus(teamID string) (models.Team, error) {
	res, err := m.lookup(teamID)
	if err != nil {
		return models.Team{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return *res.team, nil
}

// GetMessageBus returns the team's MessageBus, or nil if the team is
// unknown.
func (m *Manager) GetMessageBus(teamID string) messaging.Bus {
	res, err := m.lookup(teamID)
	if err != nil {
		return nil
	}
	return res.bus
}

// GetTaskBoard returns the team's TaskBoard, or nil if the team is
// unknown.
func (m *Manager) GetTaskBoard(teamID string) *taskboard.TaskBoard {
	res, err := m.lookup(teamID)
	if err != nil {
		return nil
	}
	return res.board
}

// SetTeamState lets an external component (the task executor) update a
// team's lifecycle state.
func (m *Manager) SetTeamState(teamID string, state models.TeamState) error {
	res, err := m.lookup(teamID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	res.team.State = state
	if state == models.TeamCompleted {
		now := time.Now()
		res.team.CompletedAt = &now
	}
	return nil
}

// AcknowledgeShutdown is called by an agent once it has finished its own
// cleanup in response to a shutdown request.
func (m *Manager) AcknowledgeShutdown(teamID, agentID string) {
	res, err := m.lookup(teamID)
	if err != nil {
		return
	}
	m.mu.Lock()
	ch, ok := res.shutdown[agentID]
	m.mu.Unlock()
	if ok {
		closeOnce(ch)
	}
}

// DisbandTeam runs the four-step teardown: signal shutdown, wait for
// acknowledgment within timeout (split evenly per agent), force-mark
// stragglers, then unregister every agent from the MessageBus. The team's
// TaskBoard and MessageBus are not released: GetTaskBoard and
// GetMessageBus still return them after disband. Idempotent: calling
// this twice on an already-disbanded team is a no-op success.
func (m *Manager) DisbandTeam(ctx context.Context, teamID string, timeout time.Duration) (models.DisbandResult, error) {
	_, end := otelinit.WithSpan(ctx, "team.disband")
	defer end()

	res, err := m.lookup(teamID)
	if err != nil {
		return models.DisbandResult{}, err
	}

	m.mu.Lock()
	alreadyDisbanded := res.team.State == models.TeamDisbanded
	m.mu.Unlock()
	if alreadyDisbanded {
		return models.DisbandResult{TeamID: teamID, Success: true}, nil
	}

	m.mu.Lock()
	agentIDs := make([]string, 0, len(res.team.Members))
	for id := range res.team.Members {
		agentIDs = append(agentIDs, id)
	}
	m.mu.Unlock()

	var errs []string
	terminated, forceTerminated := 0, 0

	senderID := fmt.Sprintf("lifecycle-manager-%s", teamID)
	gone := make(map[string]struct{})
	for _, agentID := range agentIDs {
		result := res.bus.SendShutdown(ctx, senderID, agentID, "Team disbanding")
		if result.Status == models.MessageFailed {
			terminated++
			gone[agentID] = struct{}{}
			slog.Warn("team: shutdown delivery failed, treating as already gone", "agent_id", agentID, "error", result.Error)
		}
	}

	var toForce []string
	if len(agentIDs) > 0 {
		perAgent := timeout / time.Duration(len(agentIDs))
		for _, agentID := range agentIDs {
			if _, isGone := gone[agentID]; isGone {
				continue
			}
			m.mu.Lock()
			ch, ok := res.shutdown[agentID]
			m.mu.Unlock()
			if !ok {
				terminated++
				continue
			}
			select {
			case <-ch:
				terminated++
			case <-time.After(perAgent):
				toForce = append(toForce, agentID)
			}
		}
	}

	for _, agentID := range toForce {
		slog.Warn("team: force-terminating unresponsive agent", "team_id", teamID, "agent_id", agentID)
		forceTerminated++
	}

	for _, agentID := range agentIDs {
		res.bus.UnregisterAgent(agentID)
	}

	m.mu.Lock()
	for _, agentID := range agentIDs {
		delete(res.shutdown, agentID)
	}
	res.team.State = models.TeamDisbanded
	now := time.Now()
	res.team.CompletedAt = &now
	res.team.Members = make(map[string]string)
	m.mu.Unlock()

	slog.Info("team disbanded", "team_id", teamID, "terminated", terminated, "force_terminated", forceTerminated)

	return models.DisbandResult{
		TeamID:                teamID,
		Success:               len(errs) == 0,
		TerminatedAgents:      terminated,
		ForceTerminatedAgents: forceTerminated,
		Errors:                errs,
	}, nil
}

func (m *Manager) lookup(teamID string) (*resources, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.teams[teamID]
	if !ok {
		return nil, &NotFoundError{TeamID: teamID}
	}
	return res, nil
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}
