package wallet

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// State is the connection state surfaced to the UI. It lives for the
// session only and is never persisted.
type State struct {
	Installed bool   `json:"installed"`
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	Network   string `json:"network,omitempty"`
	Loading   bool   `json:"loading"`
	Error     string `json:"error,omitempty"`
}

// Session tracks wallet connection state across requests.
// Each operation is a single round-trip to the agent reflected directly to
// the caller; there are no retries.
type Session struct {
	mu     sync.Mutex
	agent  Agent
	state  State
	logger *slog.Logger
}

// NewSession creates a session over the given agent.
func NewSession(agent Agent, logger *slog.Logger) *Session {
	return &Session{
		agent:  agent,
		logger: logger,
	}
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CheckStatus queries the agent for installation, access grant, address, and
// network. A definitive answer replaces the session state; a transient agent
// failure keeps the previously known state and records the error on it.
func (s *Session) CheckStatus(ctx context.Context) (State, error) {
	s.setLoading()

	installed, err := s.agent.IsConnected(ctx)
	if err != nil {
		return s.fail(err), err
	}
	if !installed {
		return s.replace(State{}), nil
	}

	allowed, err := s.agent.IsAllowed(ctx)
	if err != nil {
		return s.fail(err), err
	}
	if !allowed {
		return s.replace(State{Installed: true}), nil
	}

	address, err := s.agent.Address(ctx)
	if err != nil {
		return s.fail(err), err
	}
	network, err := s.agent.Network(ctx)
	if err != nil {
		return s.fail(err), err
	}

	state := State{
		Installed: true,
		Connected: address != "",
		Address:   address,
		Network:   network,
	}

	s.logger.DebugContext(ctx, "wallet status checked",
		"installed", state.Installed,
		"connected", state.Connected,
		"network", state.Network,
	)

	return s.replace(state), nil
}

// Connect requests access from the agent and refreshes the state.
// Fails with ErrNotInstalled when no agent is reachable and with
// *ConnectionDeniedError when the agent refuses access.
func (s *Session) Connect(ctx context.Context) (State, error) {
	s.setLoading()

	installed, err := s.agent.IsConnected(ctx)
	if err != nil {
		return s.fail(err), err
	}
	if !installed {
		return s.fail(ErrNotInstalled), ErrNotInstalled
	}

	if err := s.agent.RequestAccess(ctx); err != nil {
		var denied *ConnectionDeniedError
		if !errors.As(err, &denied) {
			err = &ConnectionDeniedError{Reason: err.Error()}
		}
		s.logger.InfoContext(ctx, "wallet connection denied", "error", err)
		return s.fail(err), err
	}

	state, err := s.CheckStatus(ctx)
	if err != nil {
		return state, err
	}

	s.logger.InfoContext(ctx, "wallet connected",
		"address", state.Address,
		"network", state.Network,
	)
	return state, nil
}

// Disconnect resets the local state to disconnected. It does not revoke the
// agent-side access grant.
func (s *Session) Disconnect() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Connected = false
	s.state.Address = ""
	s.state.Network = ""
	s.state.Error = ""
	return s.state
}

// Sign delegates envelope signing to the agent.
func (s *Session) Sign(ctx context.Context, envelopeXDR, networkPassphrase string) (string, error) {
	return s.agent.SignTransaction(ctx, envelopeXDR, networkPassphrase)
}

// setLoading marks a wallet operation in flight. replace and fail both clear
// the flag when the operation settles.
func (s *Session) setLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = true
	s.state.Error = ""
}

func (s *Session) replace(state State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return state
}

func (s *Session) fail(err error) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = false
	s.state.Error = err.Error()
	return s.state
}
